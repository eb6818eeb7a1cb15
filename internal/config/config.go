package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Port            string        `mapstructure:"PORT"`
	DBDriver        string        `mapstructure:"DB_DRIVER"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	SQLitePath      string        `mapstructure:"SQLITE_PATH"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`
	UploadDir       string        `mapstructure:"UPLOAD_DIR"`

	GeoProvider     string        `mapstructure:"GEO_PROVIDER"`
	GeoapifyAPIKey  string        `mapstructure:"GEOAPIFY_API_KEY"`
	GeoapifyBaseURL string        `mapstructure:"GEOAPIFY_BASE_URL"`
	GeoapifyLang    string        `mapstructure:"GEOAPIFY_LANG"`
	NominatimURL    string        `mapstructure:"NOMINATIM_URL"`
	GeoRPS          float64       `mapstructure:"GEO_RPS"`
	RouteWorkers    int           `mapstructure:"ROUTE_WORKERS"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	GeocodeCacheTTL time.Duration `mapstructure:"GEOCODE_CACHE_TTL"`
	EnrichOnUpload  bool          `mapstructure:"ENRICH_ON_UPLOAD"`
	FillBudget      time.Duration `mapstructure:"FILL_BUDGET"`
}

// keys lists every setting so AutomaticEnv can see variables that have no
// default and are absent from .env.
var keys = []string{
	"ENV", "PORT", "DB_DRIVER", "DATABASE_URL", "SQLITE_PATH", "CORS_ALLOWED_ORIGINS",
	"REQUEST_TIMEOUT", "LOG_LEVEL", "MAX_UPLOAD_MB", "UPLOAD_DIR",
	"GEO_PROVIDER", "GEOAPIFY_API_KEY", "GEOAPIFY_BASE_URL", "GEOAPIFY_LANG", "NOMINATIM_URL",
	"GEO_RPS", "ROUTE_WORKERS", "REDIS_URL", "GEOCODE_CACHE_TTL", "ENRICH_ON_UPLOAD",
	"FILL_BUDGET",
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "retrotrack.db")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("GEO_PROVIDER", "mock")
	v.SetDefault("GEOAPIFY_BASE_URL", "https://api.geoapify.com")
	v.SetDefault("GEOAPIFY_LANG", "vi")
	v.SetDefault("GEO_RPS", 5)
	v.SetDefault("ROUTE_WORKERS", 4)
	v.SetDefault("GEOCODE_CACHE_TTL", "720h")
	v.SetDefault("ENRICH_ON_UPLOAD", false)
	v.SetDefault("FILL_BUDGET", "20s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.GeoProvider {
	case "geoapify":
		if c.GeoapifyAPIKey == "" {
			return fmt.Errorf("GEOAPIFY_API_KEY is required when GEO_PROVIDER=geoapify")
		}
	case "nominatim", "mock":
	default:
		return fmt.Errorf("unsupported GEO_PROVIDER %q", c.GeoProvider)
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.FillBudget < 0 {
		return fmt.Errorf("FILL_BUDGET must not be negative")
	}
	return nil
}

func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB << 20
}
