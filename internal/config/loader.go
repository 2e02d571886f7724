package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var defaults = map[string]any{
	"server.address":          ":8080",
	"server.static_dir":       "web",
	"server.cors_origins":     "*",
	"server.shutdown_timeout": 10000,

	"database.url":             "",
	"database.max_connections": 25,
	"database.max_idle":        5,
	"database.notify_channel":  "session_saved",
	"database.auto_migrate":    true,

	"redis.address":  "",
	"redis.password": "",
	"redis.db":       0,
	"redis.key":      "triage:api_keys",

	"gemini.api_keys":        "",
	"gemini.model":           "gemini-1.5-flash",
	"gemini.base_url":        "https://generativelanguage.googleapis.com",
	"gemini.backend":         "gemini",
	"gemini.rotation_factor": 2,
	"gemini.timeout":         30000,

	"openai.base_url": "https://api.openai.com/v1",
	"openai.model":    "gpt-4o-mini",

	"places.geoapify_key":  "",
	"places.geoapify_url":  "https://api.geoapify.com",
	"places.nominatim_url": "https://nominatim.openstreetmap.org",
	"places.user_agent":    "symptom-triage/1.0",
	"places.timeout":       10000,
	"places.radius":        10000,
	"places.search_radius": 25000,

	"flow.max_questions":         10,
	"flow.max_duplicate_retries": 5,
	"flow.save_debounce":         1000,

	"auth.jwt_secret": "",
	"auth.admins":     "",

	"logging.level":  "info",
	"logging.format": "json",

	"supabase.url": "",
}

// Load reads .env, then config.yaml from ./configs or the working directory,
// then environment overrides (gemini.api_keys is GEMINI_API_KEYS).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), "")
}

// LoadFromFile is Load with an explicit config file.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDefaults repairs zero values a config file may have set explicitly.
func applyDefaults(cfg *Config) {
	if cfg.Gemini.RotationFactor <= 0 {
		cfg.Gemini.RotationFactor = 2
	}
	if cfg.Flow.MaxQuestions <= 0 {
		cfg.Flow.MaxQuestions = 10
	}
	if cfg.Flow.MaxDuplicateRetries <= 0 {
		cfg.Flow.MaxDuplicateRetries = 5
	}
	if cfg.Flow.SaveDebounce < 0 {
		cfg.Flow.SaveDebounce = 0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Gemini.Backend = strings.ToLower(strings.TrimSpace(cfg.Gemini.Backend))
}

// overrideFromEnv honours the conventional variable names used by hosting
// platforms.
func overrideFromEnv(cfg *Config) {
	if cfg.Gemini.APIKeys == "" {
		if val := os.Getenv("GEMINI_API_KEY"); val != "" {
			cfg.Gemini.APIKeys = val
		}
	}
	if cfg.Database.URL == "" {
		if val := os.Getenv("DATABASE_URL"); val != "" {
			cfg.Database.URL = val
		}
	}
	if cfg.Places.GeoapifyKey == "" {
		if val := os.Getenv("GEOAPIFY_API_KEY"); val != "" {
			cfg.Places.GeoapifyKey = val
		}
	}
	if cfg.Auth.JWTSecret == "" {
		if val := os.Getenv("SUPABASE_JWT_SECRET"); val != "" {
			cfg.Auth.JWTSecret = val
		}
	}
	if val := os.Getenv("PORT"); val != "" && cfg.Server.Address == defaults["server.address"] {
		cfg.Server.Address = ":" + val
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Gemini.Backend {
	case "gemini", "openai":
	default:
		return fmt.Errorf("gemini.backend must be gemini or openai, got %q", cfg.Gemini.Backend)
	}
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if cfg.Places.SearchRadius < 0 || cfg.Places.Radius < 0 {
		return fmt.Errorf("places radius must not be negative")
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	return nil
}
