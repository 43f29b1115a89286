package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar           = "APP_NAME"
	sessionFileVar       = "SESSION_FILE"
	sessionPassphraseVar = "SESSION_PASSPHRASE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Realms Auth")
}

// GetSessionFile returns the path of the single persisted session record.
func (EnvVars) GetSessionFile() string {
	if path := os.Getenv(sessionFileVar); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(home, ".realms-auth", "session.json")
}

// GetSessionPassphrase returns the at-rest encryption passphrase, empty for a
// plain-text record.
func (EnvVars) GetSessionPassphrase() string {
	return GetEnv(sessionPassphraseVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
