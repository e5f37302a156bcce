// Package repository persists credential and session records in MySQL.
// Sentinel errors let higher layers distinguish failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. The authenticator
// maps it to an enumeration-safe invalid-credentials or invalid-token
// error before anything reaches a client.
var ErrNotFound = errors.New("not found")
