package state

import (
	"os"
	"strings"
)

// ArtifactPresent reports whether the file at path exists and is non-empty
// after whitespace trimming — the presence test the pipeline state machine
// uses throughout SPEC_FULL.md §4.2's transition table.
func ArtifactPresent(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) != ""
}

// ReadArtifact returns the trimmed contents of path, or "" if it is missing.
func ReadArtifact(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
