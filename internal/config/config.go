package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	DatabaseURL  string `env:"DATABASE_URL,required"`
	SoundPath    string `env:"SOUND_PATH" envDefault:"sounds"`
	Prefix       string `env:"DEFAULT_PREFIX" envDefault:"!"`
	WebAddr      string `env:"WEB_LISTEN_ADDR" envDefault:":8080"`
	Debug        bool   `env:"DEBUG" envDefault:"false"`
}

// New loads .env if present, then the process environment.
func New() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}
