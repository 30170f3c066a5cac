// Package main hosts the triage CLI.
//
// The Cobra command tree resolves configuration, runs preflight checks, and
// hands a disk image to the workflow package. Subcommands stay thin: new
// behavior belongs in the internal packages first.
package main
