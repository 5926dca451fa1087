package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string
	AppDir     string
	JWTSecret  string
	PairingKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	YtdlpPath  string
	FFmpegPath string
	MockEngine bool
	Debug      bool
}

// Load reads CLIPY_* variables, picking up a .env file first when one
// sits next to the binary.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:       env("CLIPY_ADDR", "127.0.0.1:18764"),
		AppDir:     env("CLIPY_APP_DIR", ""),
		JWTSecret:  env("CLIPY_JWT_SECRET", "dev-change-me"),
		PairingKey: env("CLIPY_PAIRING_KEY", ""),
		AccessTTL:  envDuration("CLIPY_ACCESS_TTL", time.Hour),
		RefreshTTL: envDuration("CLIPY_REFRESH_TTL", 30*24*time.Hour),
		YtdlpPath:  env("CLIPY_YTDLP_PATH", ""),
		FFmpegPath: env("CLIPY_FFMPEG_PATH", ""),
		MockEngine: envBool("CLIPY_MOCK_ENGINE", false),
		Debug:      envBool("CLIPY_DEBUG", false),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
