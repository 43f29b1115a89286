package config

type ServiceConfig interface {
	GetRealmsURL() string
	GetClientVersion() string
}

type Service struct{}

var _ ServiceConfig = Service{}

func (Service) GetRealmsURL() string {
	return GetEnv("REALMS_URL", "https://realms.example.com")
}

func (Service) GetClientVersion() string {
	return GetEnv("CLIENT_VERSION", "1.0.0")
}
