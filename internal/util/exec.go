package util

import "os/exec"

// ResolveExecutable returns the path of an external tool. A non-empty
// customPath must itself resolve; otherwise name is looked up in PATH.
// It returns "" when the tool cannot be found.
func ResolveExecutable(customPath, name string) string {
	candidate := name
	if customPath != "" {
		candidate = customPath
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return ""
	}
	return path
}
