package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// pathKeys are input fields that hold filesystem paths. They are made
// absolute before hashing so "a.txt" and "./a.txt" map to one cache
// entry.
var pathKeys = map[string]bool{
	"file_path":     true,
	"path":          true,
	"notebook_path": true,
}

// Fingerprint derives the cache key for an action and its input: a
// 16-character hex digest over the action name and the canonicalized
// parameters. Canonicalization sorts object keys and normalizes path
// fields, so two encodings of the same logical input always produce the
// same key.
func Fingerprint(action string, input map[string]any) string {
	canon, err := json.Marshal(NormalizeInput(input))
	if err != nil {
		// Inputs decoded from JSON always marshal; this branch keeps the
		// function total for hand-built maps.
		canon = []byte(fmt.Sprintf("%v", input))
	}
	sum := sha256.Sum256([]byte(action + ":" + string(canon)))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeInput returns a copy of input with path fields absolutized.
// The copy is shallow: only top-level path fields are rewritten.
func NormalizeInput(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		if pathKeys[k] {
			if s, ok := v.(string); ok && s != "" {
				out[k] = normalizePath(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
