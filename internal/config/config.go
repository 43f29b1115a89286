package config

type Config interface {
	EnvConfig
	AuthConfig
	ServiceConfig
}

type EnvConfig interface {
	GetAppName() string
	GetSessionFile() string
	GetSessionPassphrase() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Auth
	Service
}

func New() Config {
	return mainConfig{}
}
