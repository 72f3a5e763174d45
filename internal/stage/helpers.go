package stage

import (
	"os"
	"strings"
)

// ArtifactExists reports whether a stage artifact path is set and present with
// nonzero size. Stages use it in Prepare to skip work on retried jobs.
func ArtifactExists(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
