package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

func checksumBytes(canon []byte) string {
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// Checksum computes the hex SHA-256 checksum of s as defined in
// SPEC_FULL.md §3: canonical JSON of the record with _checksum removed.
func Checksum(s *State) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	delete(m, "_checksum")
	canon, err := canonicalJSON(m)
	if err != nil {
		return "", err
	}
	return checksumBytes(canon), nil
}

// checksumOfMap computes the same checksum directly from a decoded JSON
// object, used by Load to detect a mismatch before the map has been turned
// into a typed State (and possibly repaired).
func checksumOfMap(m map[string]interface{}) (string, error) {
	clean := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "_checksum" {
			continue
		}
		clean[k] = v
	}
	canon, err := canonicalJSON(clean)
	if err != nil {
		return "", err
	}
	return checksumBytes(canon), nil
}
