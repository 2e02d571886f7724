package config

import (
	"strings"
	"time"
)

// Config is the service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Places   PlacesConfig   `mapstructure:"places"`
	Flow     FlowConfig     `mapstructure:"flow"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
}

// ServerConfig controls the HTTP listener and the static client.
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	StaticDir   string `mapstructure:"static_dir"`
	CORSOrigins string `mapstructure:"cors_origins"`
	// ShutdownTimeout in milliseconds.
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig points at Postgres.  An empty URL keeps sessions in memory
// and disables the curated hospital table.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	NotifyChannel  string `mapstructure:"notify_channel"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// RedisConfig holds the API key pool.  An empty address keeps it in memory.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// GeminiConfig holds the model backend settings and the API key pool.
type GeminiConfig struct {
	// APIKeys is a comma separated list.
	APIKeys        string `mapstructure:"api_keys"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	Backend        string `mapstructure:"backend"`
	RotationFactor int    `mapstructure:"rotation_factor"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
}

// Keys splits APIKeys, dropping blanks.
func (g GeminiConfig) Keys() []string {
	var out []string
	for _, k := range strings.Split(g.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// OpenAIConfig applies when gemini.backend is "openai".
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// PlacesConfig configures the map services and search radii in meters.
type PlacesConfig struct {
	GeoapifyKey  string  `mapstructure:"geoapify_key"`
	GeoapifyURL  string  `mapstructure:"geoapify_url"`
	NominatimURL string  `mapstructure:"nominatim_url"`
	UserAgent    string  `mapstructure:"user_agent"`
	Timeout      int     `mapstructure:"timeout"` // milliseconds
	Radius       float64 `mapstructure:"radius"`
	SearchRadius float64 `mapstructure:"search_radius"`
}

// FlowConfig bounds the interview.
type FlowConfig struct {
	MaxQuestions        int `mapstructure:"max_questions"`
	MaxDuplicateRetries int `mapstructure:"max_duplicate_retries"`
	SaveDebounce        int `mapstructure:"save_debounce"` // milliseconds
}

// AuthConfig configures token verification.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// Admins lists the token subjects, comma separated, that may replace
	// the API key pool over HTTP.
	Admins string `mapstructure:"admins"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SupabaseConfig is only reported by the health endpoint.
type SupabaseConfig struct {
	URL string `mapstructure:"url"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
