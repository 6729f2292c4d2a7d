package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Capability tiers a caller can request for a run. Each tier maps to a
// concrete agent model via Config.Models.
const (
	TierFast     = "fast"
	TierStandard = "standard"
	TierCritical = "critical"
)

// Config is the effective clauder configuration after all sources have
// been merged.
type Config struct {
	Schema string `json:"$schema,omitempty" yaml:"-"`

	// AgentPath is the agent CLI binary to spawn. Resolved via PATH
	// when not absolute.
	AgentPath string `json:"agent_path,omitempty" yaml:"agent_path"`

	// Models maps capability tiers to agent model names.
	Models map[string]string `json:"models,omitempty" yaml:"models"`

	// DefaultTier is used when a run does not request a tier.
	DefaultTier string `json:"default_tier,omitempty" yaml:"default_tier"`

	Timeouts    TimeoutConfig     `json:"timeouts,omitempty" yaml:"timeouts"`
	Socket      SocketConfig      `json:"socket,omitempty" yaml:"socket"`
	Permission  PermissionConfig  `json:"permission,omitempty" yaml:"permission"`
	Interaction InteractionConfig `json:"interaction,omitempty" yaml:"interaction"`
	Server      ServerConfig      `json:"server,omitempty" yaml:"server"`
}

// TimeoutConfig holds the run timing knobs, all in seconds.
type TimeoutConfig struct {
	// Execution bounds the whole run including resumed turns.
	Execution int `json:"execution,omitempty" yaml:"execution"`
	// Inactivity bounds the silence between agent output events.
	Inactivity int `json:"inactivity,omitempty" yaml:"inactivity"`
	// Heartbeat is the progress-signal interval while the agent is quiet.
	Heartbeat int `json:"heartbeat,omitempty" yaml:"heartbeat"`
	// Interaction bounds how long a human may take to answer an in-band
	// question before the run fails.
	Interaction int `json:"interaction,omitempty" yaml:"interaction"`
	// Permission bounds how long a human may take to decide a permission
	// query before it is denied.
	Permission int `json:"permission,omitempty" yaml:"permission"`
}

// ExecutionDuration returns the execution timeout as a time.Duration.
func (t TimeoutConfig) ExecutionDuration() time.Duration {
	return time.Duration(t.Execution) * time.Second
}

// InactivityDuration returns the inactivity timeout as a time.Duration.
func (t TimeoutConfig) InactivityDuration() time.Duration {
	return time.Duration(t.Inactivity) * time.Second
}

// HeartbeatDuration returns the heartbeat interval as a time.Duration.
func (t TimeoutConfig) HeartbeatDuration() time.Duration {
	return time.Duration(t.Heartbeat) * time.Second
}

// InteractionDuration returns the interaction timeout as a time.Duration.
func (t TimeoutConfig) InteractionDuration() time.Duration {
	return time.Duration(t.Interaction) * time.Second
}

// PermissionDuration returns the permission-prompt timeout as a
// time.Duration.
func (t TimeoutConfig) PermissionDuration() time.Duration {
	return time.Duration(t.Permission) * time.Second
}

// SocketConfig tunes the permission IPC client.
type SocketConfig struct {
	// Retries is the number of connection attempts before giving up.
	Retries int `json:"retries,omitempty" yaml:"retries"`
	// RetryDelayMS is the initial backoff between attempts, in
	// milliseconds.
	RetryDelayMS int `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms"`
}

// RetryDelay returns the initial backoff as a time.Duration.
func (s SocketConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

// PermissionConfig controls the permission broker.
type PermissionConfig struct {
	// StorePath is the persistent permission store location.
	StorePath string `json:"store_path,omitempty" yaml:"store_path"`
	// Rules are checked before any human is asked. First match wins.
	Rules []Rule `json:"rules,omitempty" yaml:"rules"`
}

// Rule is a configured permission decision. Pattern has the form
// "Action(target-glob)", e.g. "Bash(git status*)" or "Read(/srv/**)".
// A bare action name matches any target.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Outcome string `json:"outcome" yaml:"outcome"` // allow or deny
}

// InteractionConfig toggles the in-band interaction kinds. Nil means
// enabled; runs may still narrow these per request.
type InteractionConfig struct {
	Choices       *bool `json:"choices,omitempty" yaml:"choices"`
	Questions     *bool `json:"questions,omitempty" yaml:"questions"`
	Confirmations *bool `json:"confirmations,omitempty" yaml:"confirmations"`
}

// ChoicesEnabled reports whether choice markers are honored.
func (i InteractionConfig) ChoicesEnabled() bool {
	return i.Choices == nil || *i.Choices
}

// QuestionsEnabled reports whether free-text question markers are honored.
func (i InteractionConfig) QuestionsEnabled() bool {
	return i.Questions == nil || *i.Questions
}

// ConfirmationsEnabled reports whether confirmation markers are honored.
func (i InteractionConfig) ConfirmationsEnabled() bool {
	return i.Confirmations == nil || *i.Confirmations
}

// ServerConfig holds the status server settings for serve mode.
type ServerConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AgentPath:   "claude",
		DefaultTier: TierStandard,
		Models: map[string]string{
			TierFast:     "haiku",
			TierStandard: "sonnet",
			TierCritical: "opus",
		},
		Timeouts: TimeoutConfig{
			Execution:   600,
			Inactivity:  120,
			Heartbeat:   5,
			Interaction: 300,
			Permission:  3600,
		},
		Socket: SocketConfig{
			Retries:      3,
			RetryDelayMS: 500,
		},
		Permission: PermissionConfig{
			StorePath: GetPaths().PermissionsPath(),
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:4517",
		},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (clauder.json / clauder.jsonc in the config dir)
// 3. Workspace config (clauder.yaml / .clauder.yaml)
// 4. CLAUDER_CONFIG file
// 5. Environment variables
func Load(workspace string) (*Config, error) {
	config := Default()

	// Track loaded files to avoid duplicates.
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 2. Global config
	globalDir := GetConfigDir()
	loadOnce(filepath.Join(globalDir, "clauder.json"), globalDir)
	loadOnce(filepath.Join(globalDir, "clauder.jsonc"), globalDir)

	// 3. Workspace config
	if workspace != "" {
		loadOnce(filepath.Join(workspace, "clauder.yaml"), workspace)
		loadOnce(filepath.Join(workspace, ".clauder.yaml"), workspace)
	}

	// 4. CLAUDER_CONFIG file override
	if configPath := os.Getenv("CLAUDER_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for contradictions that would make a
// run misbehave.
func (c *Config) Validate() error {
	if c.AgentPath == "" {
		return fmt.Errorf("config: agent_path must not be empty")
	}
	if _, ok := c.Models[c.DefaultTier]; !ok {
		return fmt.Errorf("config: default_tier %q has no model mapping", c.DefaultTier)
	}
	t := c.Timeouts
	if t.Inactivity <= 0 {
		return fmt.Errorf("config: inactivity timeout must be positive, got %d", t.Inactivity)
	}
	if t.Execution <= t.Inactivity {
		return fmt.Errorf("config: execution timeout (%d) must exceed inactivity timeout (%d)", t.Execution, t.Inactivity)
	}
	if t.Heartbeat <= 0 {
		return fmt.Errorf("config: heartbeat interval must be positive, got %d", t.Heartbeat)
	}
	for _, rule := range c.Permission.Rules {
		if rule.Outcome != "allow" && rule.Outcome != "deny" {
			return fmt.Errorf("config: rule %q has outcome %q, want allow or deny", rule.Pattern, rule.Outcome)
		}
	}
	return nil
}

// ModelForTier resolves a requested tier to an agent model name. An empty
// tier resolves through DefaultTier.
func (c *Config) ModelForTier(tier string) (string, error) {
	if tier == "" {
		tier = c.DefaultTier
	}
	model, ok := c.Models[tier]
	if !ok {
		return "", fmt.Errorf("config: unknown tier %q", tier)
	}
	return model, nil
}

// loadConfigFile loads a single config file. JSON and JSONC files get
// comment stripping and placeholder interpolation; YAML files are parsed
// as-is.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	var fileConfig Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		data = jsonc.ToJSON(data)
		data = interpolate(data, baseDir)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Scalars overwrite when
// set, maps merge key-by-key, rule lists append.
func mergeConfig(target, source *Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.AgentPath != "" {
		target.AgentPath = source.AgentPath
	}
	if source.DefaultTier != "" {
		target.DefaultTier = source.DefaultTier
	}

	if source.Models != nil {
		if target.Models == nil {
			target.Models = make(map[string]string)
		}
		for k, v := range source.Models {
			target.Models[k] = v
		}
	}

	if source.Timeouts.Execution > 0 {
		target.Timeouts.Execution = source.Timeouts.Execution
	}
	if source.Timeouts.Inactivity > 0 {
		target.Timeouts.Inactivity = source.Timeouts.Inactivity
	}
	if source.Timeouts.Heartbeat > 0 {
		target.Timeouts.Heartbeat = source.Timeouts.Heartbeat
	}
	if source.Timeouts.Interaction > 0 {
		target.Timeouts.Interaction = source.Timeouts.Interaction
	}
	if source.Timeouts.Permission > 0 {
		target.Timeouts.Permission = source.Timeouts.Permission
	}

	if source.Socket.Retries > 0 {
		target.Socket.Retries = source.Socket.Retries
	}
	if source.Socket.RetryDelayMS > 0 {
		target.Socket.RetryDelayMS = source.Socket.RetryDelayMS
	}

	if source.Permission.StorePath != "" {
		target.Permission.StorePath = source.Permission.StorePath
	}
	if len(source.Permission.Rules) > 0 {
		target.Permission.Rules = append(target.Permission.Rules, source.Permission.Rules...)
	}

	if source.Interaction.Choices != nil {
		target.Interaction.Choices = source.Interaction.Choices
	}
	if source.Interaction.Questions != nil {
		target.Interaction.Questions = source.Interaction.Questions
	}
	if source.Interaction.Confirmations != nil {
		target.Interaction.Confirmations = source.Interaction.Confirmations
	}

	if source.Server.Listen != "" {
		target.Server.Listen = source.Server.Listen
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if agentPath := os.Getenv("CLAUDER_AGENT_PATH"); agentPath != "" {
		config.AgentPath = agentPath
	}
	if tier := os.Getenv("CLAUDER_TIER"); tier != "" {
		config.DefaultTier = tier
	}
	if listen := os.Getenv("CLAUDER_LISTEN"); listen != "" {
		config.Server.Listen = listen
	}
	if storePath := os.Getenv("CLAUDER_PERMISSION_STORE"); storePath != "" {
		config.Permission.StorePath = storePath
	}
	if permJSON := os.Getenv("CLAUDER_PERMISSION"); permJSON != "" {
		var perm PermissionConfig
		if err := json.Unmarshal([]byte(permJSON), &perm); err == nil {
			if perm.StorePath != "" {
				config.Permission.StorePath = perm.StorePath
			}
			if len(perm.Rules) > 0 {
				config.Permission.Rules = append(config.Permission.Rules, perm.Rules...)
			}
		}
	}
	if v := os.Getenv("CLAUDER_EXECUTION_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.Timeouts.Execution = secs
		}
	}
	if v := os.Getenv("CLAUDER_INACTIVITY_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.Timeouts.Inactivity = secs
		}
	}
}
