// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start.
type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	BaseURL        string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DBPath         string        `env:"DB_PATH" envDefault:"./data/homeledger.db"`
	AttachmentsDir string        `env:"ATTACHMENTS_DIR" envDefault:"./data/attachments"`
	JWTSecret      string        `env:"JWT_SECRET,required"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// DefaultCurrency tags amounts when neither the request nor the
	// household specifies one.
	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"INR"`

	// MilkPricePerLitre is the fixed rate for the monthly milk aggregate.
	MilkPricePerLitre string `env:"MILK_PRICE_PER_LITRE" envDefault:"52"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
