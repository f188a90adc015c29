package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret string

	// Bootstrap admin account; created at startup when a password is set.
	AdminUser     string
	AdminPassword string

	CORSOrigins []string

	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from a viper instance that the command layer has
// already bound to flags, environment (PORTAL_*) and an optional file.
func Load(v *viper.Viper) Config {
	return Config{
		HTTPAddr:      v.GetString("addr"),
		DBDriver:      v.GetString("db-driver"),
		DBDSN:         v.GetString("db-dsn"),
		AuthSecret:    v.GetString("auth-secret"),
		AdminUser:     v.GetString("admin-user"),
		AdminPassword: v.GetString("admin-password"),
		CORSOrigins:   splitCSV(v.GetString("cors-origins")),
		SweepInterval: v.GetDuration("sweep-interval"),
		LogLevel:      v.GetString("log-level"),
		LogFormat:     v.GetString("log-format"),
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
