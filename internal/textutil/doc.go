// Package textutil provides text helpers shared by the CLI and the reporting
// modules: table rendering, display labels, and filesystem-safe tokens.
package textutil
