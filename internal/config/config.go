// Package config loads and saves rtcdemo's session configuration, split
// across a world-readable file (STUN servers, session defaults) and a
// restricted secrets file (the TURN shared secret), the way bamgate splits
// config.toml from secrets.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ascii-chat-rtc/rtc/internal/stunurl"
)

// DefaultSTUNServers are the public STUN servers used when none are
// configured (spec.md §6, "STUN server URL").
var DefaultSTUNServers = []string{
	"stun:stun.cloudflare.com:3478",
	"stun:stun.l.google.com:19302",
}

// DefaultConfigDir is the user-level config directory for rtcdemo.
const DefaultConfigDir = ".config/rtcdemo"

const secretsFileName = "secrets.toml"

// Config is the session configuration loaded from config.toml/secrets.toml.
type Config struct {
	ICE  ICEConfig  `toml:"ice"`
	TURN TURNConfig `toml:"turn"`
}

// ICEConfig controls ICE candidate gathering (spec.md §4.1, §4.2).
type ICEConfig struct {
	STUNServers []string `toml:"stun_servers"`
	TURNServers []string `toml:"turn_servers,omitempty"`

	// SkipHost suppresses host-type candidates at the outbound signaling
	// point (spec.md §4.2, "Filtering policy").
	SkipHost bool `toml:"skip_host,omitempty"`

	// ForceRelay restricts ICE to the TURN relay path.
	ForceRelay bool `toml:"force_relay,omitempty"`

	// GatheringTimeoutMS bounds how long a peer may gather ICE candidates
	// before being torn down (spec.md §4.4, `check_gathering_timeouts`).
	GatheringTimeoutMS int `toml:"gathering_timeout_ms,omitempty"`
}

// TURNConfig holds the TURN username and credential validity window (the
// TURN server URLs live in ICEConfig.TURNServers); the
// shared secret itself lives only in secrets.toml (spec.md §4.3) and is
// merged in by LoadConfig, never decoded directly from config.toml.
type TURNConfig struct {
	Username     string `toml:"username,omitempty"`
	ValiditySecs int    `toml:"validity_secs,omitempty"`

	secret string
}

// Secret returns the TURN shared secret, populated only after LoadConfig
// (not LoadPublicConfig) reads secrets.toml.
func (t TURNConfig) Secret() string { return t.secret }

// secretsFile is the TOML representation for secrets.toml.
type secretsFile struct {
	TURN turnSecretsFile `toml:"turn"`
}

type turnSecretsFile struct {
	Secret string `toml:"secret,omitempty"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ICE: ICEConfig{
			STUNServers:        append([]string(nil), DefaultSTUNServers...),
			GatheringTimeoutMS: 10_000,
		},
		TURN: TURNConfig{
			ValiditySecs: 86400,
		},
	}
}

// DefaultConfigPath returns ~/.config/rtcdemo/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir, "config.toml"), nil
}

// SecretsPathFromConfig derives the secrets.toml path from a config.toml path.
func SecretsPathFromConfig(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), secretsFileName)
}

// LoadConfig reads config.toml and secrets.toml, merging them into a single
// Config. A missing secrets.toml leaves the TURN secret empty rather than
// failing, so commands that don't need TURN still work.
func LoadConfig(path string) (*Config, error) {
	cfg, err := LoadPublicConfig(path)
	if err != nil {
		return nil, err
	}

	secretsPath := SecretsPathFromConfig(path)
	var sec secretsFile
	if _, err := toml.DecodeFile(secretsPath, &sec); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading secrets file %s: %w", secretsPath, err)
		}
	} else {
		cfg.TURN.secret = sec.TURN.Secret
	}

	return cfg, nil
}

// LoadPublicConfig reads only config.toml, skipping secrets.
func LoadPublicConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// SaveConfig writes config.toml (0644) and secrets.toml (0600) to the
// directory containing path, creating it if necessary.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	if err := writeFile(path, 0644, cfg); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	secretsPath := SecretsPathFromConfig(path)
	sec := secretsFile{TURN: turnSecretsFile{Secret: cfg.TURN.secret}}
	if err := writeFile(secretsPath, 0600, &sec); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}

	return nil
}

// SetTURNSecret sets the TURN shared secret on cfg, for callers assembling
// a Config before SaveConfig.
func (c *Config) SetTURNSecret(secret string) {
	c.TURN.secret = secret
}

func writeFile(path string, mode os.FileMode, v interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encoding TOML: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, mode)
}

// ParseTOML decodes a TOML config from a string.
func ParseTOML(s string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(s, cfg); err != nil {
		return nil, fmt.Errorf("decoding TOML config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// MarshalTOML encodes a Config to a TOML string.
func MarshalTOML(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding TOML config: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// applyDefaults fills in zero-valued optional fields after TOML decoding,
// and normalizes the STUN server list via stunurl.Parse (spec.md §6).
func applyDefaults(cfg *Config) {
	joined := strings.Join(cfg.ICE.STUNServers, ",")
	cfg.ICE.STUNServers = stunurl.Parse(joined, DefaultSTUNServers)

	if cfg.TURN.ValiditySecs <= 0 {
		cfg.TURN.ValiditySecs = 86400
	}
	if cfg.ICE.GatheringTimeoutMS <= 0 {
		cfg.ICE.GatheringTimeoutMS = 10_000
	}
}
