package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"triage/internal/config"
	"triage/internal/deps"
	"triage/internal/pipeline"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadable verifies that a file or directory exists and can be read.
func CheckReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	mode := uint32(unix.R_OK)
	if info.IsDir() {
		mode |= unix.X_OK
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckOutputDir verifies that outDir does not exist yet and that its parent
// accepts new entries.
func CheckOutputDir(outDir string) Result {
	const name = "Output directory"
	if _, err := os.Lstat(outDir); err == nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: already exists)", outDir)}
	} else if !os.IsNotExist(err) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", outDir, err)}
	}
	parent := CheckDirectoryAccess(name, filepath.Dir(outDir))
	if !parent.Passed {
		return parent
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", outDir)}
}

// CheckPrograms resolves every exec module command in the pipeline config.
func CheckPrograms(cfg *config.Config, pipelineCfg *pipeline.PipelineConfig) []Result {
	if pipelineCfg == nil {
		return nil
	}
	var requirements []deps.Requirement
	for _, chain := range [][]pipeline.ModuleSpec{pipelineCfg.FileAnalysis, pipelineCfg.Carve, pipelineCfg.Reporting} {
		for _, spec := range chain {
			if spec.Disabled || !strings.EqualFold(strings.TrimSpace(spec.Module), "exec") {
				continue
			}
			command, err := spec.Args.Strings("command")
			if err != nil || len(command) == 0 {
				// the pipeline manager reports malformed arguments
				continue
			}
			requirements = append(requirements, deps.Requirement{
				Name:     "Module program",
				Command:  cfg.ResolveProgPath(command[0]),
				Optional: true,
			})
		}
	}
	statuses := deps.CheckBinaries(requirements)
	results := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		if st.Available {
			results = append(results, Result{Name: st.Name, Passed: true, Optional: st.Optional, Detail: fmt.Sprintf("%s (found)", st.Path)})
			continue
		}
		results = append(results, Result{Name: st.Name, Optional: st.Optional, Detail: st.Detail})
	}
	return results
}
