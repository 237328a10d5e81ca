package redisstore

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redisstore: empty connection URL, set REDIS_URL")
	ErrFailedToParseURL   = errors.New("redisstore: failed to parse connection URL")
	ErrNotReady           = errors.New("redisstore: redis did not become ready")
	ErrHealthcheckFailed  = errors.New("redisstore: healthcheck failed")
)
