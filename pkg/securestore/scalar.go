package securestore

import "sync"

// Scalar is a private copy of secret bytes that can be borrowed and wiped.
type Scalar struct {
	lock   sync.RWMutex
	data   []byte
	zeroed bool
}

// NewScalar copies secret into a new Scalar. The caller keeps ownership of
// the given slice.
func NewScalar(secret []byte) *Scalar {
	data := make([]byte, len(secret))
	copy(data, secret)
	return &Scalar{data: data}
}

// Len returns the length of the secret, 0 once zeroed.
func (s *Scalar) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.data)
}

// IsZeroed returns whether the secret has been wiped.
func (s *Scalar) IsZeroed() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.zeroed
}

// With lends the secret to fn. fn must not retain the slice.
func (s *Scalar) With(fn func(secret []byte) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.zeroed {
		return ErrScalarZeroed
	}
	return fn(s.data)
}

// Copy returns a copy of the secret. The caller owns it and should Zero it
// when done.
func (s *Scalar) Copy() ([]byte, error) {
	var out []byte
	err := s.With(func(secret []byte) error {
		out = make([]byte, len(secret))
		copy(out, secret)
		return nil
	})
	return out, err
}

// Zero wipes the secret. Subsequent reads fail with ErrScalarZeroed.
func (s *Scalar) Zero() {
	s.lock.Lock()
	defer s.lock.Unlock()

	Zero(s.data)
	s.data = nil
	s.zeroed = true
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
