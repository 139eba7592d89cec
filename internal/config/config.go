package config

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

const (
	EnvDev = "DEV"

	devSecretBytes = 32
)

type Config interface {
	EnvConfig
	TokenConfig
	StoreConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAdminCredentials() (email, password string, ok bool)
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Tokens
	Store
	Cors
}

var _ Config = mainConfig{}

// Load reads the configuration from the environment and validates it.
// Outside DEV both token secrets are required; in DEV missing secrets are
// replaced with random ones, so tokens do not survive a restart.
func Load() (Config, error) {
	var c mainConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, apperrors.Wrapf(err, "[config.Load]")
	}

	if c.IsDev() {
		if err := c.Tokens.fillDevSecrets(); err != nil {
			return nil, err
		}
	}
	if err := c.Tokens.validate(); err != nil {
		return nil, err
	}
	if err := c.Store.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *Tokens) fillDevSecrets() error {
	for _, secret := range []*string{&t.AccessSecret, &t.RefreshSecret} {
		if *secret != "" {
			continue
		}
		generated, err := randomSecret()
		if err != nil {
			return apperrors.Wrapf(err, "[config.Load] generating dev secret")
		}
		*secret = generated
		log.Warn().Msg("token secret not set, using a random development secret")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, devSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalisePort(port string) string {
	return ":" + strings.TrimPrefix(port, ":")
}
