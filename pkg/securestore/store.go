package securestore

import (
	"errors"
	"sync"
)

var (
	// ErrStoreClosed is returned by any operation on a closed store.
	ErrStoreClosed = errors.New("secure store is closed")
	// ErrScalarNotFound ...
	ErrScalarNotFound = errors.New("scalar not found")
	// ErrScalarZeroed is returned when reading a scalar that was released.
	ErrScalarZeroed = errors.New("scalar has been zeroed")
	// ErrNullScalar ...
	ErrNullScalar = errors.New("scalar must not be null")
)

// SecureStorage defines the methods of an in-memory holder of raw key
// material (seeds, private scalars, chain codes) that guarantees the
// material is wiped once released.
type SecureStorage interface {
	// Put takes ownership of the given bytes under the given name. The
	// caller's slice is zeroed once copied.
	Put(name string, secret []byte) (*Scalar, error)
	// Get returns the scalar stored under name.
	Get(name string) (*Scalar, error)
	// Delete zeroes and removes the scalar stored under name, if any.
	Delete(name string)
	// IsClosed returns whether Close was called.
	IsClosed() bool
	// Close zeroes every scalar and makes the store unusable.
	Close()
}

type store struct {
	lock    sync.Mutex
	scalars map[string]*Scalar
	closed  bool
}

// NewSecureStorage returns an empty in-memory SecureStorage.
func NewSecureStorage() SecureStorage {
	return &store{scalars: make(map[string]*Scalar)}
}

func (s *store) Put(name string, secret []byte) (*Scalar, error) {
	if len(secret) <= 0 {
		return nil, ErrNullScalar
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		Zero(secret)
		return nil, ErrStoreClosed
	}

	scalar := NewScalar(secret)
	Zero(secret)

	if prev, ok := s.scalars[name]; ok {
		prev.Zero()
	}
	s.scalars[name] = scalar
	return scalar, nil
}

func (s *store) Get(name string) (*Scalar, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	scalar, ok := s.scalars[name]
	if !ok {
		return nil, ErrScalarNotFound
	}
	return scalar, nil
}

func (s *store) Delete(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if scalar, ok := s.scalars[name]; ok {
		scalar.Zero()
		delete(s.scalars, name)
	}
}

func (s *store) IsClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.closed
}

func (s *store) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for name, scalar := range s.scalars {
		scalar.Zero()
		delete(s.scalars, name)
	}
	s.closed = true
}
