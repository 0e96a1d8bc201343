// Package id provides the IdGen port: unique string ID generation backed by
// google/uuid, the way the teacher generates entity IDs throughout
// pkg/devclaw/media and pkg/devclaw/copilot.
package id

import "github.com/google/uuid"

// Gen implements the IdGen port.
type Gen interface {
	Next() string
}

// UUIDGen is the default Gen, producing canonical UUIDv4 strings.
type UUIDGen struct{}

// Next returns a new random UUID string.
func (UUIDGen) Next() string { return uuid.New().String() }
