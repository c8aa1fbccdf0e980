package chat

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces a fresh unique message id per call.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a plain function to IDGenerator.
type IDGeneratorFunc func() string

// NewID calls f.
func (f IDGeneratorFunc) NewID() string { return f() }

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new UUID string.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// ULIDGenerator issues ULIDs, which sort by creation time.
type ULIDGenerator struct{}

// NewID returns a new ULID string.
func (ULIDGenerator) NewID() string { return ulid.Make().String() }

// NewIDGenerator returns the generator for the named format: "uuid" or
// "ulid". An empty name selects uuid.
func NewIDGenerator(format string) (IDGenerator, error) {
	switch format {
	case "", "uuid":
		return UUIDGenerator{}, nil
	case "ulid":
		return ULIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown message id format %q", format)
	}
}
