// Package settings loads the wcmpd daemon configuration.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// SSH describes an optional tunnel to the switch Redis.
type SSH struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user"`
	Password   string `yaml:"password,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text, json or auto
}

// Audit configures the audit log.
type Audit struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// Capacity bounds the next-hop-group tables of the ASIC. Zero means
// unbounded.
type Capacity struct {
	MaxGroups  int `yaml:"max_groups,omitempty"`
	MaxMembers int `yaml:"max_members,omitempty"`
}

// Settings is the daemon configuration.
type Settings struct {
	// RedisAddr is the switch Redis (host:port). Ignored when SSH is set.
	RedisAddr string `yaml:"redis_addr,omitempty"`
	SSH       *SSH   `yaml:"ssh,omitempty"`

	// Table is the APPL_DB state table carrying requests.
	Table string `yaml:"table,omitempty"`

	Log      Log      `yaml:"log,omitempty"`
	Audit    Audit    `yaml:"audit,omitempty"`
	Capacity Capacity `yaml:"capacity,omitempty"`

	// NextHops maps next-hop ids to the OIDs of next hops already
	// programmed on the switch.
	NextHops map[string]sai.OID `yaml:"next_hops,omitempty"`
}

// Defaults.
const (
	DefaultRedisAddr = "127.0.0.1:6379"
	DefaultTable     = "P4RT_TABLE"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultPath returns the default path for the configuration file.
func DefaultPath() string {
	if _, err := os.Stat("/etc/wcmpd/wcmpd.yaml"); err == nil {
		return "/etc/wcmpd/wcmpd.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wcmpd.yaml"
	}
	return filepath.Join(home, ".wcmpd", "wcmpd.yaml")
}

// Load reads the configuration from the default location.
func Load() (*Settings, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the configuration at path. A missing file yields the
// defaults.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.RedisAddr == "" {
		s.RedisAddr = DefaultRedisAddr
	}
	if s.Table == "" {
		s.Table = DefaultTable
	}
	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	if s.Log.Format == "" {
		s.Log.Format = DefaultLogFormat
	}
	if s.SSH != nil && s.SSH.Port == 0 {
		s.SSH.Port = 22
	}
}

// Validate checks the configuration for consistency.
func (s *Settings) Validate() error {
	v := &util.ValidationBuilder{}
	switch s.Log.Format {
	case "text", "json", "auto":
	default:
		v.AddErrorf("log.format %q must be text, json or auto", s.Log.Format)
	}
	if s.SSH != nil {
		v.Add(s.SSH.Host != "", "ssh.host is required")
		v.Add(s.SSH.User != "", "ssh.user is required")
		v.Add(s.SSH.Port > 0 && s.SSH.Port < 65536, fmt.Sprintf("ssh.port %d is out of range", s.SSH.Port))
	}
	v.Add(s.Capacity.MaxGroups >= 0, "capacity.max_groups must not be negative")
	v.Add(s.Capacity.MaxMembers >= 0, "capacity.max_members must not be negative")
	v.Add(s.Audit.MaxSizeMB >= 0, "audit.max_size_mb must not be negative")
	for id, oid := range s.NextHops {
		v.Add(id != "", "next_hops has an empty id")
		v.Add(!oid.IsNull(), fmt.Sprintf("next hop %q has a null oid", id))
	}
	return v.Build()
}

// SaveTo writes the configuration to path.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
