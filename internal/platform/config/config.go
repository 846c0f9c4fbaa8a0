// Package config carga la configuración del servicio desde env vars.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// DSN de Postgres. Vacío => repos in-memory (modo dev/handoff).
	DBDSN string `env:"DB_DSN"`

	// Directorio de identidad externo. Vacío => directorio in-memory.
	IDPBaseURL string `env:"IDP_BASE_URL"`
	IDPAPIKey  string `env:"IDP_API_KEY"`

	// Secreto HS256 para verificar access tokens. Vacío => modo dev
	// (headers X-Debug-*).
	AuthSecret string `env:"AUTH_SECRET"`

	// Base para construir invitationUrl (?invite=<token>).
	InviteBaseURL string `env:"INVITE_BASE_URL" envDefault:"https://app.mindcare.example/register"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	AppName   string `env:"APP_NAME" envDefault:"mindcare-api"`
}

// Load parsea la configuración desde el entorno.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	return cfg, nil
}

func (c Config) Addr() string { return ":" + c.Port }
