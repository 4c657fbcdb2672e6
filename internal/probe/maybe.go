package probe

import "encoding/json"

// Maybe is the outcome of a best-effort capture step: either a value or the
// reason it is absent.
type Maybe[T any] struct {
	value  T
	ok     bool
	reason string
}

func Some[T any](v T) Maybe[T] {
	return Maybe[T]{value: v, ok: true}
}

func Absent[T any](reason string) Maybe[T] {
	return Maybe[T]{reason: reason}
}

// Get returns the value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.ok
}

// OK reports whether a value is present.
func (m Maybe[T]) OK() bool {
	return m.ok
}

// Reason explains an absent value; it is empty when the value is present.
func (m Maybe[T]) Reason() string {
	return m.reason
}

// MarshalJSON encodes the value, or null when absent.
func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON treats null as absent.
func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Maybe[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}
