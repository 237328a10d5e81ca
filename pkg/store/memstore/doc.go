// Package memstore provides in-memory implementations of the vault storage
// interfaces. Nothing survives the process; it backs tests and the CLI's
// default "memory" driver.
package memstore
