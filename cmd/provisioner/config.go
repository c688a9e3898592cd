package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/api/http"
	"github.com/EternisAI/silo-provisioner/internal/db"
	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log          LogConfig
	Http         http.Config
	KeyManager   keymanager.Config   `mapstructure:"keymanager"`
	TokenVault   tokenvault.Config   `mapstructure:"tokenvault"`
	Transport    TransportConfig     `mapstructure:"transport"`
	Retry        RetryConfig         `mapstructure:"retry"`
	Provisioning provisioning.Config `mapstructure:"provisioning"`
	Input        InputConfig         `mapstructure:"input"`
	Database     db.Config           `mapstructure:"database"`
}

type TransportConfig struct {
	VerifySSL      bool `mapstructure:"verify_ssl"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

func (c TransportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RetryConfig struct {
	Attempts       int `mapstructure:"attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

type InputConfig struct {
	Path string `mapstructure:"path"`
}

var config Config

// legacyEnv maps config keys to the environment names used by existing deployments.
var legacyEnv = map[string]string{
	"keymanager.host":           "CTM_HOST",
	"keymanager.username":       "CTM_ADMIN_USER",
	"keymanager.password":       "CTM_ADMIN_PASS",
	"tokenvault.host":           "CTVL_HOST",
	"tokenvault.username":       "CTVL_ADMIN_USER",
	"tokenvault.password":       "CTVL_ADMIN_PASS",
	"transport.verify_ssl":      "VERIFY_SSL",
	"transport.timeout_seconds": "TIMEOUT_SECONDS",
	"log.file":                  "LOG_FILE",
	"provisioning.email_domain": "DEFAULT_EMAIL_DOMAIN",
	"provisioning.cte_owner_id": "CTE_OWNER_ID",
	"input.path":                "INPUT_EXCEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", LOG_LEVEL_INFO)
	v.SetDefault("log.file", "log/provision.log")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.admin_api_key", "")
	v.SetDefault("keymanager.host", "https://127.0.0.1")
	v.SetDefault("keymanager.username", "admin")
	v.SetDefault("keymanager.password", "password")
	v.SetDefault("tokenvault.host", "https://127.0.0.1")
	v.SetDefault("tokenvault.username", "admin")
	v.SetDefault("tokenvault.password", "password")
	v.SetDefault("transport.verify_ssl", false)
	v.SetDefault("transport.timeout_seconds", 30)
	v.SetDefault("retry.attempts", provisioning.DefaultAuthAttempts)
	v.SetDefault("retry.backoff_seconds", int(provisioning.DefaultAuthBackoff/time.Second))
	v.SetDefault("provisioning.email_domain", "example.local")
	v.SetDefault("provisioning.cte_owner_id", "local|15feac1d-af25-42e5-893f-854989884d5e")
	v.SetDefault("provisioning.workers", 1)
	v.SetDefault("input.path", "config/input.xlsx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_conns", 4)
}

// loadConfig reads application.yaml when present, then the environment. Keys map to
// variables with dots replaced by underscores, for example KEYMANAGER_HOST.
func loadConfig(v *viper.Viper, paths ...string) (Config, error) {
	v.SetConfigName("application")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, env := range legacyEnv {
		_ = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func InitConfig() {
	_ = godotenv.Load()

	var err error
	config, err = loadConfig(viper.GetViper(), ".", "./cmd/provisioner")
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	if err := initLogger(config.Log.Level, config.Log.File); err != nil {
		panic(err)
	}

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(redacted(config), "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

func redacted(cfg Config) Config {
	const mask = "********"
	if cfg.KeyManager.Password != "" {
		cfg.KeyManager.Password = mask
	}
	if cfg.TokenVault.Password != "" {
		cfg.TokenVault.Password = mask
	}
	if cfg.Http.AdminAPIKey != "" {
		cfg.Http.AdminAPIKey = mask
	}
	if cfg.Database.URL != "" {
		cfg.Database.URL = mask
	}
	return cfg
}
