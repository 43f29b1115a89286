package identity

import "errors"

var (
	ProviderFaultErr = errors.New("identity provider fault")
	RefreshFaultErr  = errors.New("session refresh fault")
	NoRefreshableErr = errors.New("session carries no refresh material")
)
