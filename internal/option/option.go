// Package option provides a three-state optional value for request payloads:
// a field can be left out, sent as JSON null, or sent with a value.
package option

import (
	"bytes"
	"encoding/json"
)

type state uint8

const (
	absent state = iota
	null
	present
)

// Option holds an optional T. The zero value is absent.
//
// Struct fields of type Option should be tagged `json:",omitzero"` so absent
// values are left out of the encoded object.
type Option[T any] struct {
	value T
	state state
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, state: present}
}

// Null returns an Option that encodes as JSON null.
func Null[T any]() Option[T] {
	return Option[T]{state: null}
}

// None returns an absent Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsZero reports whether the option is absent. It lets encoding/json's
// omitzero drop absent fields.
func (o Option[T]) IsZero() bool { return o.state == absent }

// IsNull reports whether the option was explicitly set to null.
func (o Option[T]) IsNull() bool { return o.state == null }

// IsSet reports whether the option carries a value.
func (o Option[T]) IsSet() bool { return o.state == present }

// Get returns the value and whether one is set.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.state == present
}

// OrElse returns the value, or def when none is set.
func (o Option[T]) OrElse(def T) T {
	if o.state == present {
		return o.value
	}
	return def
}

// MarshalJSON encodes a set value as itself and anything else as null.
func (o Option[T]) MarshalJSON() ([]byte, error) {
	if o.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as Null and anything else as Some. A field
// missing from the input leaves the option absent.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.value, o.state = zero, null
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.value, o.state = v, present
	return nil
}
