// Package deps resolves the external programs pipeline modules run.
package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names a program a module invokes. Command is either a bare name
// looked up on PATH or a path already resolved against the program directory.
type Requirement struct {
	Name     string
	Command  string
	Optional bool
}

// Status is the lookup result for one requirement.
type Status struct {
	Requirement
	// Path is the resolved executable when Available is set.
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves every requirement, preserving input order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results = append(results, lookup(req))
	}
	return results
}

func lookup(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	switch {
	case err == nil:
		status.Path = path
		status.Available = true
	case errors.Is(err, exec.ErrNotFound):
		status.Detail = fmt.Sprintf("program %q not found", req.Command)
	default:
		// exists but is not executable, or a permission problem on the way
		status.Detail = fmt.Sprintf("program %q unusable: %v", req.Command, err)
	}
	return status
}
