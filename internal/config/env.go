package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets in the YAML file.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// ApplyEnv loads a .env file if present (best-effort) and overrides secrets set in the
// environment. Extra files are loaded after .env; none overwrite variables already set.
func (c *Config) ApplyEnv(files ...string) {
	_ = godotenv.Load() // best-effort
	if len(files) > 0 {
		_ = godotenv.Load(files...)
	}
	if v := os.Getenv(EnvTelegramToken); v != "" {
		c.Notify.Token = v
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		c.Notify.ChatID = v
	}
}
