package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type Config struct {
	APIServerHost string `env:"API_SERVER_HOST"`
	APIServerPort string `env:"API_SERVER_PORT" envDefault:"8080"`

	RedisHost       string `env:"REDIS_HOST"`
	RedisPort       string `env:"REDIS_PORT" envDefault:"6379"`
	RedisFixChannel string `env:"REDIS_FIX_CHANNEL" envDefault:"location:fixes"`

	GeocoderBaseURL string `env:"GEOCODER_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderMaxHits int    `env:"GEOCODER_MAX_HITS" envDefault:"5"`

	OAuthRedirectURL   string `env:"OAUTH_REDIRECT_URL"`
	GoogleIssuerURL    string `env:"GOOGLE_ISSUER_URL"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	FacebookAppID      string `env:"FACEBOOK_APP_ID"`

	Env Env `env:"ENV" envDefault:"prod"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Env.IsValid() {
		return nil, fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	return &cfg, nil
}
