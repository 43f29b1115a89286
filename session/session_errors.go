package session

import "errors"

var (
	StorageFaultErr = errors.New("session storage fault")
	ParseFaultErr   = errors.New("session record malformed")
)
