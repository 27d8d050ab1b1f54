package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabaseURL    string
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	JWTSecret string
	JWTExpiry time.Duration

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	UploadDir           string // Local asset backend root
	PublicURL           string // Base URL the local backend builds asset URLs from

	AssetSweepSchedule string
	AssetSweepGrace    time.Duration

	LoginRateLimit int // Requests per minute per IP on the auth endpoints
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UseCloudinary reports whether all Cloudinary credentials are present.
func (c *Config) UseCloudinary() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// NewViper returns a viper instance with the defaults and environment binding
// used by Load. A .env file in the working directory is loaded first if present.
func NewViper(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", 5000)
	v.SetDefault("DATABASE_URL", "./blog.db")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("JWT_EXPIRE", "7d")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("PUBLIC_URL", "http://localhost:5000")
	v.SetDefault("ASSET_SWEEP_SCHEDULE", "")
	v.SetDefault("ASSET_SWEEP_GRACE", "72h")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	port := v.GetInt("PORT")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", v.GetString("PORT"))
	}

	secret := strings.TrimSpace(v.GetString("JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	expiry, err := ParseExpiry(v.GetString("JWT_EXPIRE"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRE: %w", err)
	}

	grace, err := time.ParseDuration(v.GetString("ASSET_SWEEP_GRACE"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASSET_SWEEP_GRACE: %w", err)
	}

	limit := v.GetInt("LOGIN_RATE_LIMIT")
	if limit <= 0 {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT %q", v.GetString("LOGIN_RATE_LIMIT"))
	}

	return &Config{
		ServerPort:          port,
		DatabaseURL:         v.GetString("DATABASE_URL"),
		AppEnv:              strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:            v.GetString("LOG_LEVEL"),
		AllowedOrigins:      splitCSV(v.GetString("FRONTEND_URL")),
		JWTSecret:           secret,
		JWTExpiry:           expiry,
		CloudinaryCloudName: v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: v.GetString("CLOUDINARY_API_SECRET"),
		UploadDir:           v.GetString("UPLOAD_DIR"),
		PublicURL:           strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		AssetSweepSchedule:  strings.TrimSpace(v.GetString("ASSET_SWEEP_SCHEDULE")),
		AssetSweepGrace:     grace,
		LoginRateLimit:      limit,
	}, nil
}

// ParseExpiry accepts a Go duration ("168h") or a whole number of days ("7d").
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %s", s)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
