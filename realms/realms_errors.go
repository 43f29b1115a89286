package realms

import "errors"

var (
	ServiceFaultErr       = errors.New("realms service fault")
	ServiceUnavailableErr = errors.New("realms service unavailable")
)
