// Package preflight checks the filesystem and external programs before a run
// touches anything: the image must be readable, the output directory must
// not exist while its parent is writable, and programs named by exec modules
// must resolve.
package preflight
