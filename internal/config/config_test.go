package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points HOME and the XDG directories at a temp dir and clears
// every CLAUDER_* variable so tests never see the developer's real config.
func isolateEnv(t *testing.T) string {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "clauder-test-*")
	require.NoError(t, err)

	vars := []string{
		"HOME", "XDG_DATA_HOME", "XDG_CONFIG_HOME", "XDG_CACHE_HOME", "XDG_STATE_HOME",
		"CLAUDER_CONFIG", "CLAUDER_CONFIG_DIR", "CLAUDER_AGENT_PATH", "CLAUDER_TIER",
		"CLAUDER_LISTEN", "CLAUDER_PERMISSION", "CLAUDER_PERMISSION_STORE",
		"CLAUDER_EXECUTION_TIMEOUT", "CLAUDER_INACTIVITY_TIMEOUT",
	}
	saved := make(map[string]string, len(vars))
	for _, v := range vars {
		saved[v] = os.Getenv(v)
		os.Unsetenv(v)
	}
	os.Setenv("HOME", tmpDir)

	t.Cleanup(func() {
		for _, v := range vars {
			if saved[v] == "" {
				os.Unsetenv(v)
			} else {
				os.Setenv(v, saved[v])
			}
		}
		os.RemoveAll(tmpDir)
	})
	return tmpDir
}

func TestDefaults(t *testing.T) {
	isolateEnv(t)

	cfg := Default()
	assert.Equal(t, "claude", cfg.AgentPath)
	assert.Equal(t, TierStandard, cfg.DefaultTier)
	assert.Equal(t, "haiku", cfg.Models[TierFast])
	assert.Equal(t, "sonnet", cfg.Models[TierStandard])
	assert.Equal(t, "opus", cfg.Models[TierCritical])
	assert.Equal(t, 600, cfg.Timeouts.Execution)
	assert.Equal(t, 120, cfg.Timeouts.Inactivity)
	assert.Equal(t, 5, cfg.Timeouts.Heartbeat)
	assert.Equal(t, 3, cfg.Socket.Retries)
	assert.Equal(t, 500, cfg.Socket.RetryDelayMS)
	assert.Equal(t, "127.0.0.1:4517", cfg.Server.Listen)
	assert.True(t, filepath.IsAbs(cfg.Permission.StorePath))
	assert.NoError(t, cfg.Validate())
}

func TestLoadGlobalJSON(t *testing.T) {
	tmpDir := isolateEnv(t)

	globalConfig := `{
		"agent_path": "/opt/agent/claude",
		"default_tier": "critical",
		"models": {
			"critical": "opus-latest"
		},
		"timeouts": {
			"execution": 900
		}
	}`
	configPath := filepath.Join(tmpDir, ".config", "clauder", "clauder.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(globalConfig), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/agent/claude", cfg.AgentPath)
	assert.Equal(t, "critical", cfg.DefaultTier)
	// Map merge keeps the default entries alongside the override.
	assert.Equal(t, "opus-latest", cfg.Models[TierCritical])
	assert.Equal(t, "sonnet", cfg.Models[TierStandard])
	assert.Equal(t, 900, cfg.Timeouts.Execution)
	assert.Equal(t, 120, cfg.Timeouts.Inactivity)
}

func TestLoadJSONCComments(t *testing.T) {
	tmpDir := isolateEnv(t)

	jsoncConfig := `{
		// Agent binary lives on a nonstandard path here.
		"agent_path": "/usr/local/bin/claude",
		/* block comment */
		"default_tier": "fast"
	}`
	configPath := filepath.Join(tmpDir, ".config", "clauder", "clauder.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(jsoncConfig), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/claude", cfg.AgentPath)
	assert.Equal(t, TierFast, cfg.DefaultTier)
}

func TestLoadWorkspaceYAML(t *testing.T) {
	isolateEnv(t)

	workspace, err := os.MkdirTemp("", "clauder-ws-*")
	require.NoError(t, err)
	defer os.RemoveAll(workspace)

	yamlConfig := `
default_tier: fast
timeouts:
  execution: 300
  inactivity: 60
permission:
  rules:
    - pattern: "Bash(git status*)"
      outcome: allow
interaction:
  confirmations: false
`
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "clauder.yaml"), []byte(yamlConfig), 0644))

	cfg, err := Load(workspace)
	require.NoError(t, err)

	assert.Equal(t, TierFast, cfg.DefaultTier)
	assert.Equal(t, 300, cfg.Timeouts.Execution)
	assert.Equal(t, 60, cfg.Timeouts.Inactivity)
	require.Len(t, cfg.Permission.Rules, 1)
	assert.Equal(t, "Bash(git status*)", cfg.Permission.Rules[0].Pattern)
	assert.Equal(t, "allow", cfg.Permission.Rules[0].Outcome)
	assert.True(t, cfg.Interaction.ChoicesEnabled())
	assert.True(t, cfg.Interaction.QuestionsEnabled())
	assert.False(t, cfg.Interaction.ConfirmationsEnabled())
}

func TestWorkspaceOverridesGlobal(t *testing.T) {
	tmpDir := isolateEnv(t)

	globalPath := filepath.Join(tmpDir, ".config", "clauder", "clauder.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(globalPath), 0755))
	require.NoError(t, os.WriteFile(globalPath, []byte(`{
		"default_tier": "critical",
		"permission": {"rules": [{"pattern": "Read(/etc/**)", "outcome": "deny"}]}
	}`), 0644))

	workspace, err := os.MkdirTemp("", "clauder-ws-*")
	require.NoError(t, err)
	defer os.RemoveAll(workspace)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, ".clauder.yaml"), []byte(`
default_tier: fast
permission:
  rules:
    - pattern: "Bash(ls*)"
      outcome: allow
`), 0644))

	cfg, err := Load(workspace)
	require.NoError(t, err)

	// Workspace scalar wins, rule lists accumulate.
	assert.Equal(t, TierFast, cfg.DefaultTier)
	require.Len(t, cfg.Permission.Rules, 2)
	assert.Equal(t, "Read(/etc/**)", cfg.Permission.Rules[0].Pattern)
	assert.Equal(t, "Bash(ls*)", cfg.Permission.Rules[1].Pattern)
}

func TestEnvInterpolation(t *testing.T) {
	tmpDir := isolateEnv(t)

	os.Setenv("CLAUDER_TEST_AGENT", "/bin/agent-from-env")
	defer os.Unsetenv("CLAUDER_TEST_AGENT")

	configPath := filepath.Join(tmpDir, ".config", "clauder", "clauder.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"agent_path": "{env:CLAUDER_TEST_AGENT}"}`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/bin/agent-from-env", cfg.AgentPath)
}

func TestFileInterpolation(t *testing.T) {
	tmpDir := isolateEnv(t)

	configDir := filepath.Join(tmpDir, ".config", "clauder")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "tier.txt"), []byte("critical"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "clauder.json"),
		[]byte(`{"default_tier": "{file:tier.txt}"}`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, TierCritical, cfg.DefaultTier)
}

func TestCLAUDERConfigFile(t *testing.T) {
	isolateEnv(t)

	extraDir, err := os.MkdirTemp("", "clauder-extra-*")
	require.NoError(t, err)
	defer os.RemoveAll(extraDir)

	extraPath := filepath.Join(extraDir, "override.yaml")
	require.NoError(t, os.WriteFile(extraPath, []byte("agent_path: /srv/claude\n"), 0644))
	os.Setenv("CLAUDER_CONFIG", extraPath)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/claude", cfg.AgentPath)
}

func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)

	os.Setenv("CLAUDER_AGENT_PATH", "/env/claude")
	os.Setenv("CLAUDER_TIER", "fast")
	os.Setenv("CLAUDER_EXECUTION_TIMEOUT", "1200")
	os.Setenv("CLAUDER_INACTIVITY_TIMEOUT", "30")
	os.Setenv("CLAUDER_PERMISSION", `{"rules": [{"pattern": "WebFetch", "outcome": "deny"}]}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/env/claude", cfg.AgentPath)
	assert.Equal(t, TierFast, cfg.DefaultTier)
	assert.Equal(t, 1200, cfg.Timeouts.Execution)
	assert.Equal(t, 30, cfg.Timeouts.Inactivity)
	require.Len(t, cfg.Permission.Rules, 1)
	assert.Equal(t, "WebFetch", cfg.Permission.Rules[0].Pattern)
}

func TestValidateTimeoutOrdering(t *testing.T) {
	isolateEnv(t)

	cfg := Default()
	cfg.Timeouts.Execution = 60
	cfg.Timeouts.Inactivity = 120
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed inactivity")

	cfg = Default()
	cfg.Timeouts.Inactivity = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timeouts.Heartbeat = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateUnknownDefaultTier(t *testing.T) {
	isolateEnv(t)

	cfg := Default()
	cfg.DefaultTier = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
}

func TestValidateRuleOutcome(t *testing.T) {
	isolateEnv(t)

	cfg := Default()
	cfg.Permission.Rules = []Rule{{Pattern: "Bash(rm*)", Outcome: "maybe"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maybe")
}

func TestModelForTier(t *testing.T) {
	isolateEnv(t)

	cfg := Default()

	model, err := cfg.ModelForTier(TierCritical)
	require.NoError(t, err)
	assert.Equal(t, "opus", model)

	model, err = cfg.ModelForTier("")
	require.NoError(t, err)
	assert.Equal(t, "sonnet", model)

	_, err = cfg.ModelForTier("turbo")
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	tc := TimeoutConfig{Execution: 600, Inactivity: 120, Heartbeat: 5, Interaction: 300, Permission: 3600}
	assert.Equal(t, 10*time.Minute, tc.ExecutionDuration())
	assert.Equal(t, 2*time.Minute, tc.InactivityDuration())
	assert.Equal(t, 5*time.Second, tc.HeartbeatDuration())
	assert.Equal(t, 5*time.Minute, tc.InteractionDuration())
	assert.Equal(t, time.Hour, tc.PermissionDuration())

	sc := SocketConfig{Retries: 3, RetryDelayMS: 500}
	assert.Equal(t, 500*time.Millisecond, sc.RetryDelay())
}

func TestPaths(t *testing.T) {
	tmpDir := isolateEnv(t)

	os.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))

	paths := GetPaths()
	assert.Equal(t, filepath.Join(tmpDir, "data", "clauder"), paths.Data)
	assert.Equal(t, filepath.Join(tmpDir, "config", "clauder"), paths.Config)
	assert.Equal(t, filepath.Join(tmpDir, "data", "clauder", "storage"), paths.StoragePath())
	assert.Equal(t, filepath.Join(tmpDir, "data", "clauder", "permissions.json"), paths.PermissionsPath())

	require.NoError(t, paths.EnsurePaths())
	for _, dir := range []string{paths.Data, paths.Config, paths.Cache, paths.State} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestGetConfigDirOverride(t *testing.T) {
	tmpDir := isolateEnv(t)

	custom := filepath.Join(tmpDir, "custom-config")
	os.Setenv("CLAUDER_CONFIG_DIR", custom)
	assert.Equal(t, custom, GetConfigDir())
	assert.Equal(t, filepath.Join(custom, "clauder.json"), GlobalConfigPath())
}
