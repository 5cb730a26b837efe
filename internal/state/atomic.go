package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// safeWrite atomically writes data to path: a temp file is created in the
// same directory (so the final rename is same-filesystem), fsynced, chmod
// 0600, then renamed over the target. It refuses to write if the parent
// directory is a symlink, and unlinks the target first if the target itself
// is a symlink, rather than writing through it. Grounded on
// qralph-state.py::safe_write.
func safeWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s is a symlink, refusing to write through it", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing symlinked target: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	cleanup = false
	return nil
}

// safeWriteJSON marshals v with two-space indentation, round-trip-validates
// the output by re-parsing it, and writes it via safeWrite. Rejects
// serializations that do not round-trip, per qralph-state.py::safe_write_json.
func safeWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	var roundtrip interface{}
	if err := json.Unmarshal(data, &roundtrip); err != nil {
		return fmt.Errorf("serialization does not round-trip: %w", err)
	}
	return safeWrite(path, data)
}

// SafeWriteJSON exports the same symlink-guarded, round-trip-validated
// atomic write for other packages (internal/registry's registry.json) that
// need identical durability guarantees without duplicating the primitive.
func SafeWriteJSON(path string, v interface{}) error {
	return safeWriteJSON(path, v)
}
