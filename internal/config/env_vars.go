package config

import "strings"

type EnvVars struct {
	Port     string `envconfig:"PORT" default:"8080"`
	AppName  string `envconfig:"APP_NAME" default:"Go Session Auth"`
	Env      string `envconfig:"ENV" default:"DEV"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Optional admin principal created at startup when both are set
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	return normalisePort(e.Port)
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return EnvDev
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) IsDev() bool {
	return e.GetEnv() == EnvDev
}

// GetAdminCredentials returns the bootstrap admin login, ok is false unless
// both values are set
func (e EnvVars) GetAdminCredentials() (email, password string, ok bool) {
	if e.AdminEmail == "" || e.AdminPassword == "" {
		return "", "", false
	}
	return e.AdminEmail, e.AdminPassword, true
}
