package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external tool a pipeline stage relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands may be bare names resolved through PATH or explicit paths.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFile reports whether a required non-executable file, such as the
// decoder jar, exists and is readable.
func CheckFile(name, path, description string) Status {
	path = strings.TrimSpace(path)
	status := Status{Name: name, Command: path, Description: description}
	if path == "" {
		status.Detail = "path not configured"
		return status
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("%s not found", path)
	case info.IsDir():
		status.Detail = fmt.Sprintf("%s is a directory", path)
	case info.Size() == 0:
		status.Detail = fmt.Sprintf("%s is empty", path)
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			status.Detail = fmt.Sprintf("%s unreadable: %v", path, openErr)
			return status
		}
		_ = f.Close()
		status.Available = true
	}
	return status
}
