package ratelimit

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
)

type keyState uint8

const (
	keyAbsent keyState = iota
	keyNull
	keySet
)

// OptionalKey is a credential that can be absent, explicitly null, or set.
// A missing JSON field decodes to absent and a JSON null to null.
type OptionalKey struct {
	value string
	state keyState
}

// KeyOf returns a set key.
func KeyOf(value string) OptionalKey {
	return OptionalKey{value: value, state: keySet}
}

// NullKey returns an explicitly null key.
func NullKey() OptionalKey {
	return OptionalKey{state: keyNull}
}

// IsSet reports whether the key carries a value.
func (k OptionalKey) IsSet() bool { return k.state == keySet }

// IsNull reports whether the key was explicitly null.
func (k OptionalKey) IsNull() bool { return k.state == keyNull }

// IsAbsent reports whether the key was never provided.
func (k OptionalKey) IsAbsent() bool { return k.state == keyAbsent }

// Value returns the key value, empty unless IsSet.
func (k OptionalKey) Value() string { return k.value }

// UnmarshalJSON implements json.Unmarshaler. It only runs when the field is
// present, so anything it sees is either null or a string.
func (k *OptionalKey) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*k = NullKey()

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*k = KeyOf(s)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (k OptionalKey) MarshalJSON() ([]byte, error) {
	if !k.IsSet() {
		return []byte("null"), nil
	}

	return json.Marshal(k.value)
}

// Credentials carry the caller's key and the key it must match.
type Credentials struct {
	Supplied  OptionalKey `json:"suppliedKey"`
	Reference OptionalKey `json:"referenceKey"`
}

// CheckKeys verifies credentials before any counting. The checks run in a
// fixed order and the first failure wins; ok is false on failure.
func CheckKeys(c Credentials) (reason Reason, ok bool) {
	switch {
	case !c.Supplied.IsSet():
		return ReasonKeyMissing, false
	case c.Reference.IsAbsent():
		return ReasonReferenceMissing, false
	case c.Reference.IsNull():
		return ReasonReferenceNull, false
	case subtle.ConstantTimeCompare([]byte(c.Supplied.value), []byte(c.Reference.value)) != 1:
		return ReasonKeyMismatch, false
	}

	return "", true
}

// Schema describes credentials for OpenAPI. Both keys are optional and
// nullable, which the generated struct schema cannot express.
func (Credentials) Schema(huma.Registry) *huma.Schema {
	key := &huma.Schema{Description: "Key as a string. Omitted and null are distinct."}

	return &huma.Schema{
		Type: huma.TypeObject,
		Properties: map[string]*huma.Schema{
			"suppliedKey":  key,
			"referenceKey": key,
		},
	}
}
