// Package config loads the daemon configuration from
// /etc/transferd/transferd.yaml, overridable through TRANSFERD_*
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

// PostHook configures one external command run after a named task
// completes for a named transfer.
type PostHook struct {
	Task     string   `mapstructure:"task"`
	Transfer string   `mapstructure:"transfer"`
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
}

type Config struct {
	ListenAddress string `mapstructure:"listenAddress"`
	// AdminSecret is exchanged for bearer tokens; TokenSecret signs
	// them. Both are generated on first boot when left empty.
	AdminSecret string `mapstructure:"adminSecret"`
	TokenSecret string `mapstructure:"tokenSecret"`

	CruiseDataDir string `mapstructure:"cruiseDataDir"`

	TransferIntervalMinutes    int  `mapstructure:"transferIntervalMinutes"`
	ShipToShoreIntervalMinutes int  `mapstructure:"shipToShoreIntervalMinutes"`
	UsageIntervalMinutes       int  `mapstructure:"usageIntervalMinutes"`
	RetryErrored               bool `mapstructure:"retryErrored"`

	DashboardCommand string   `mapstructure:"dashboardCommand"`
	DashboardArgs    []string `mapstructure:"dashboardArgs"`

	PostHooks []PostHook `mapstructure:"postHooks"`
}

func (c Config) TransferInterval() time.Duration {
	return time.Duration(c.TransferIntervalMinutes) * time.Minute
}

func (c Config) ShipToShoreInterval() time.Duration {
	return time.Duration(c.ShipToShoreIntervalMinutes) * time.Minute
}

func (c Config) UsageInterval() time.Duration {
	return time.Duration(c.UsageIntervalMinutes) * time.Minute
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("transferd")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(constants.ConfigBasePath)
	}

	v.SetEnvPrefix("TRANSFERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listenAddress", "127.0.0.1:8280")
	v.SetDefault("cruiseDataDir", "/data/warehouse")
	v.SetDefault("transferIntervalMinutes", constants.DefaultTransferInterval)
	v.SetDefault("shipToShoreIntervalMinutes", 5)
	v.SetDefault("usageIntervalMinutes", 10)
	v.SetDefault("retryErrored", true)

	return v
}

// Load reads the configuration. A missing config file is not an error;
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the result to
// onChange. Reload errors keep the previous configuration.
func Watch(path string, onChange func(*Config)) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		// Nothing to watch without a file.
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			syslog.L.Error(err).WithField("file", e.Name).WithMessage("config reload failed").Write()
			return
		}
		syslog.L.Info().WithField("file", e.Name).WithMessage("configuration reloaded").Write()
		onChange(&cfg)
	})
	v.WatchConfig()
}
