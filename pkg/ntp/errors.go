package ntp

import "errors"

var (
	ErrSyncTimeout     = errors.New("ntp: sync timed out")
	ErrSyncUnreachable = errors.New("ntp: server unreachable")
	ErrInvalidResponse = errors.New("ntp: invalid server response")
	ErrShortPacket     = errors.New("ntp: packet shorter than 48 bytes")
	ErrKissOfDeath     = errors.New("ntp: kiss-o'-death from server")
	ErrNoServers       = errors.New("ntp: no servers given")
)
