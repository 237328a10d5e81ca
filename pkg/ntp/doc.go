// Package ntp is a minimal SNTP client used to measure local clock drift.
//
// A query sends a 48-byte NTPv4 client packet whose transmit timestamp is the
// local send time t1. The server reply carries its receive time t2 and
// transmit time t3; the local receive time is t4. From these:
//
//	offset = ((t2 - t1) + (t3 - t4)) / 2
//	delay  = (t4 - t1) - (t3 - t2)
//
// Timestamps on the wire are big-endian 32.32 fixed-point seconds since
// 1900-01-01.
//
// Replies are validated (server mode, non-zero stratum, synchronized leap
// indicator, origin timestamp echo). Network failures are classified as
// ErrSyncTimeout or ErrSyncUnreachable so callers can degrade to the local
// clock without inspecting net errors.
//
// QueryAll fans out to several servers concurrently and returns every
// outcome; one failing server never cancels the others.
package ntp
