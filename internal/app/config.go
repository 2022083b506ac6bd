package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Access-Control-Allow-Origin for the REST fallback surface.
	CORSOrigin string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("CHATSYNC_HTTP_ADDR", "0.0.0.0:3001"),
		LogLevel: EnvString("CHATSYNC_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("CHATSYNC_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CHATSYNC_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CHATSYNC_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CHATSYNC_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CHATSYNC_HTTP_MAX_HEADER_BYTES", 1<<20),

		CORSOrigin: EnvString("CHATSYNC_REST_CORS_ORIGIN", "*"),
	}
}
