package pipeline

import "os"

// writeFile is a thin os.WriteFile wrapper so every plain-text artifact
// (PLAN.md, SUMMARY.md) in this package goes through one seam.
func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}
