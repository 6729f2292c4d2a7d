package permission

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	input := map[string]any{"command": "git status", "timeout": float64(5000)}

	fp1 := Fingerprint("Bash", input)
	fp2 := Fingerprint("Bash", input)

	assert.Equal(t, fp1, fp2)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), fp1)
}

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	// Decode the same logical object from two differently ordered and
	// differently spaced encodings.
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"command":"ls","description":"list","nested":{"x":1,"y":2}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{ "nested": {"y": 2, "x": 1}, "description": "list", "command": "ls" }`), &b))

	assert.Equal(t, Fingerprint("Bash", a), Fingerprint("Bash", b))
}

func TestFingerprint_DistinguishesActionAndInput(t *testing.T) {
	input := map[string]any{"file_path": "/tmp/a.txt"}

	assert.NotEqual(t, Fingerprint("Read", input), Fingerprint("Write", input))
	assert.NotEqual(t,
		Fingerprint("Read", map[string]any{"file_path": "/tmp/a.txt"}),
		Fingerprint("Read", map[string]any{"file_path": "/tmp/b.txt"}))
}

func TestFingerprint_PathSpellings(t *testing.T) {
	fp1 := Fingerprint("Write", map[string]any{"file_path": "/tmp/a.txt"})
	fp2 := Fingerprint("Write", map[string]any{"file_path": "/tmp/../tmp/a.txt"})
	fp3 := Fingerprint("Write", map[string]any{"file_path": "/tmp/./a.txt"})

	assert.Equal(t, fp1, fp2)
	assert.Equal(t, fp1, fp3)
}

func TestFingerprint_NilInput(t *testing.T) {
	assert.Equal(t, Fingerprint("Read", nil), Fingerprint("Read", nil))
	assert.NotEqual(t, Fingerprint("Read", nil), Fingerprint("Write", nil))
}

func TestNormalizeInput(t *testing.T) {
	cwd, err := filepath.Abs(".")
	require.NoError(t, err)

	out := NormalizeInput(map[string]any{
		"file_path": "a.txt",
		"content":   "hello",
		"count":     float64(3),
	})

	assert.Equal(t, filepath.Join(cwd, "a.txt"), out["file_path"])
	assert.Equal(t, "hello", out["content"])
	assert.Equal(t, float64(3), out["count"])
}

func TestNormalizeInput_DoesNotMutate(t *testing.T) {
	in := map[string]any{"path": "rel/dir"}
	_ = NormalizeInput(in)
	assert.Equal(t, "rel/dir", in["path"])
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		input    map[string]any
		expected string
	}{
		{
			name:     "read file",
			action:   "Read",
			input:    map[string]any{"file_path": "/workspace/main.go"},
			expected: "/workspace/main.go",
		},
		{
			name:     "edit normalizes path",
			action:   "Edit",
			input:    map[string]any{"file_path": "/workspace/../workspace/main.go"},
			expected: "/workspace/main.go",
		},
		{
			name:     "bash command",
			action:   "Bash",
			input:    map[string]any{"command": "  git push origin main  "},
			expected: "git push origin main",
		},
		{
			name:     "glob with path",
			action:   "Glob",
			input:    map[string]any{"pattern": "**/*.go", "path": "/src"},
			expected: "**/*.go in /src",
		},
		{
			name:     "glob without path",
			action:   "Glob",
			input:    map[string]any{"pattern": "**/*.go"},
			expected: "**/*.go",
		},
		{
			name:     "grep with path",
			action:   "Grep",
			input:    map[string]any{"pattern": "TODO", "path": "/src"},
			expected: "TODO in /src",
		},
		{
			name:     "webfetch url",
			action:   "WebFetch",
			input:    map[string]any{"url": "https://example.com/docs"},
			expected: "https://example.com/docs",
		},
		{
			name:     "websearch query",
			action:   "WebSearch",
			input:    map[string]any{"query": "golang context timeout"},
			expected: "golang context timeout",
		},
		{
			name:     "unknown tool renders input",
			action:   "mcp__db__query",
			input:    map[string]any{"sql": "SELECT 1"},
			expected: `{"sql":"SELECT 1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Target(tt.action, tt.input))
		})
	}
}

func TestTarget_GrepDefaultsToWorkingDir(t *testing.T) {
	cwd, err := filepath.Abs(".")
	require.NoError(t, err)
	assert.Equal(t, "TODO in "+cwd, Target("Grep", map[string]any{"pattern": "TODO"}))
}

func TestTarget_ClipsLongCommand(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	target := Target("Bash", map[string]any{"command": long})
	assert.Len(t, target, 100)
}
