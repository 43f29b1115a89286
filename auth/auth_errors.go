package auth

import "errors"

var (
	NoSessionErr      = errors.New("no valid session")
	NotUsableErr      = errors.New("session lacks the service access grant")
	LoginCancelledErr = errors.New("login cancelled")
)
