// Package config loads server runtime configuration from environment
// variables, with optional .env file support.
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the serve and batch modes.
type Config struct {
	// Server
	Host string
	Port int

	// Batch processing
	Workers int

	// External tool paths; empty means PATH lookup
	FFmpegPath string
	PythonPath string
}

// Load reads configuration from the environment with sane defaults.
// A .env file in the working directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Host:       envStr("HOST", ""),
		Port:       envInt("PORT", 8080),
		Workers:    envInt("WORKERS", defaultWorkers()),
		FFmpegPath: envStr("FFMPEG_PATH", ""),
		PythonPath: envStr("PYTHON_PATH", ""),
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 2 {
		n = 2
	}
	return n
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
