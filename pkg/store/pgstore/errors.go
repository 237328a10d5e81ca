package pgstore

import "errors"

var (
	ErrEmptyConnectionString   = errors.New("pgstore: empty connection string, set PG_CONN_URL")
	ErrFailedToParseConfig     = errors.New("pgstore: failed to parse connection string")
	ErrFailedToConnect         = errors.New("pgstore: failed to connect")
	ErrFailedToApplyMigrations = errors.New("pgstore: failed to apply migrations")
	ErrHealthcheckFailed       = errors.New("pgstore: healthcheck failed")
)
