package mongostore

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("mongostore: empty connection URL, set MONGODB_URL")
	ErrFailedToConnect    = errors.New("mongostore: failed to connect")
	ErrHealthcheckFailed  = errors.New("mongostore: healthcheck failed")
	ErrMalformedDocument  = errors.New("mongostore: malformed entry document")
)
