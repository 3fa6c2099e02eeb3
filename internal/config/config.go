package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied by SetDefaults.
const (
	DefaultStorageRoot   = "/var/lib/fwkeeper"
	DefaultToolName      = "fwkeeper"
	DefaultTablesFile    = "/proc/net/ip_tables_names"
	DefaultCaptureLimit  = 2000
	DefaultModprobe      = "/sbin/modprobe"
	DefaultLogLevel      = "info"
	DefaultSaveInterval  = 5 * time.Minute
	DefaultListenAddress = ":9090"
)

// Config captures the runtime settings for fwkeeper commands.
type Config struct {
	StorageRoot        string        `mapstructure:"storage-root"`
	ToolName           string        `mapstructure:"tool-name"`
	TablesFile         string        `mapstructure:"tables-file"`
	CaptureLimit       int           `mapstructure:"capture-limit"`
	Modprobe           string        `mapstructure:"modprobe"`
	LogLevel           string        `mapstructure:"log-level"`
	SaveInterval       time.Duration `mapstructure:"save-interval"`
	ListenAddress      string        `mapstructure:"listen-address"`
	ConfigMapNamespace string        `mapstructure:"configmap-namespace"`
	ConfigMapName      string        `mapstructure:"configmap-name"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage-root", DefaultStorageRoot)
	v.SetDefault("tool-name", DefaultToolName)
	v.SetDefault("tables-file", DefaultTablesFile)
	v.SetDefault("capture-limit", DefaultCaptureLimit)
	v.SetDefault("modprobe", DefaultModprobe)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("save-interval", DefaultSaveInterval)
	v.SetDefault("listen-address", DefaultListenAddress)
	v.SetDefault("configmap-namespace", "")
	v.SetDefault("configmap-name", "")
}

// Load reads configuration values from the global viper into a Config instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StorageRoot) == "" {
		errs = append(errs, errors.New("storage-root must not be empty"))
	}
	if strings.TrimSpace(c.TablesFile) == "" {
		errs = append(errs, errors.New("tables-file must not be empty"))
	}
	if c.CaptureLimit <= 0 {
		errs = append(errs, fmt.Errorf("capture-limit must be positive, got %d", c.CaptureLimit))
	}
	if c.SaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("save-interval must be positive, got %s", c.SaveInterval))
	}
	if (c.ConfigMapNamespace == "") != (c.ConfigMapName == "") {
		errs = append(errs, errors.New("configmap-namespace and configmap-name must be set together"))
	}
	return errors.Join(errs...)
}

// PublishEnabled reports whether saves are published to a ConfigMap.
func (c Config) PublishEnabled() bool {
	return c.ConfigMapNamespace != "" && c.ConfigMapName != ""
}
