// Package config loads Domainwatch configuration from file and environment
// and builds the application logger.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Env holds process-level configuration: everything that is fixed at boot
// time, as opposed to the runtime settings stored alongside the domains.
type Env struct {
	DatabasePath string `mapstructure:"database_path"`
	ListenAddr   string `mapstructure:"listen_addr"`

	// EncryptionKey protects stored CMS credentials. Either a 64-character
	// hex string (raw AES-256 key) or an arbitrary passphrase.
	EncryptionKey string `mapstructure:"encryption_key"`

	SearchAPIKey     string `mapstructure:"search_api_key"`
	SearchEndpoint   string `mapstructure:"search_endpoint"`
	BackupCheckerURL string `mapstructure:"backup_checker_url"`
	RDAPEndpoint     string `mapstructure:"rdap_endpoint"`
	PingDiagnostics  bool   `mapstructure:"ping_diagnostics"`

	Logging Logging `mapstructure:"logging"`
}

// Load reads configuration from the given file (or the default search
// paths when empty) plus DW_-prefixed environment variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("database_path", "./data/domainwatch.db")
	v.SetDefault("listen_addr", "127.0.0.1:9215")
	v.SetDefault("encryption_key", "")
	v.SetDefault("search_api_key", "")
	v.SetDefault("search_endpoint", "https://api.bing.microsoft.com/v7.0/search")
	v.SetDefault("backup_checker_url", "https://cek-status-api.vercel.app/api/check")
	v.SetDefault("rdap_endpoint", "https://rdap.org")
	v.SetDefault("ping_diagnostics", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("domainwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/domainwatch")
	}

	// Environment variable support: DW_DATABASE_PATH=/var/lib/dw.db
	v.SetEnvPrefix("DW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// EnvFrom unmarshals the process-level section of the given Viper instance.
func EnvFrom(v *viper.Viper) (*Env, error) {
	var e Env
	if err := v.Unmarshal(&e); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &e, nil
}
