// Package config reads the runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/notenwerk/notenwerk/internal/match"
)

type Config struct {
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string // empty picks the driver default

	UploadBase string // root of the stored submission tree

	CORSOrigins []string

	// Fuzzy matching knobs for email/upload reconciliation.
	MatchThreshold float64
	MatchMargin    float64

	DefaultScale     string // scale key assigned to new courses
	SeedDefaultScale bool   // create the German scale on startup
}

// Load reads .env when present, then the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		PublicURL:        os.Getenv("PUBLIC_URL"),
		DBDriver:         envOr("DB_DRIVER", "sqlite"),
		DBDSN:            envOr("DB_DSN", ""),
		UploadBase:       envOr("UPLOAD_BASE", "./data/uploads"),
		CORSOrigins:      csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		MatchThreshold:   envFloat("MATCH_THRESHOLD", match.DefaultThreshold),
		MatchMargin:      envFloat("MATCH_MARGIN", match.DefaultMargin),
		DefaultScale:     envOr("DEFAULT_SCALE", "german"),
		SeedDefaultScale: envBool("SEED_DEFAULT_SCALE", true),
	}
}
func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
