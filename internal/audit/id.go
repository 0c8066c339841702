package audit

import "github.com/jaevor/go-nanoid"

// DefaultIDLength is the length of generated event ids.
const DefaultIDLength = 21

// NewIDGenerator returns a url-safe random id generator for events.
func NewIDGenerator(length int) (func() string, error) {
	return nanoid.Standard(length)
}
