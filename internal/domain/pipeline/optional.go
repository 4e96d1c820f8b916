package pipeline

import (
	"bytes"
	"encoding/json"
)

// Optional is a tri-state field: absent (no opinion), null (clear the value)
// or a concrete value. The zero value is absent.
//
// In JSON a missing key decodes as absent and an explicit null decodes as
// null. Use the omitzero tag option so absent fields are not encoded.
type Optional[T any] struct {
	present bool
	valid   bool
	value   T
}

// Absent returns an Optional that carries no opinion.
func Absent[T any]() Optional[T] {
	return Optional[T]{}
}

// Null returns an Optional that explicitly clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{present: true}
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{present: true, valid: true, value: v}
}

// FromPtr maps nil to null and anything else to a value.
func FromPtr[T any](v *T) Optional[T] {
	if v == nil {
		return Null[T]()
	}
	return Some(*v)
}

func (o Optional[T]) IsPresent() bool { return o.present }
func (o Optional[T]) IsNull() bool    { return o.present && !o.valid }
func (o Optional[T]) IsZero() bool    { return !o.present }

// Get returns the value and whether one is set. Absent and null both report false.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

// Ptr returns a pointer to a copy of the value, or nil when absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.valid {
		return nil
	}
	v := o.value
	return &v
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
