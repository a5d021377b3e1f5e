package txbuilder

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// Claimer tracks which draft provisionally spends an outpoint. Every
// method must be atomic: either all the given outpoints are affected or
// none is.
type Claimer interface {
	// Claim marks the outpoints as spent by the draft. It fails with
	// ErrDoubleSpendConflict if any is claimed by a different draft.
	// Claiming again an outpoint already owned by the draft is a no-op.
	Claim(draftID string, outpoints []wire.OutPoint) error
	// Release removes the draft's claims on the outpoints. Outpoints
	// claimed by other drafts are left untouched.
	Release(draftID string, outpoints []wire.OutPoint) error
	// Transfer moves the claims of a draft to the draft replacing it.
	Transfer(fromDraftID, toDraftID string, outpoints []wire.OutPoint) error
}

type memClaimer struct {
	lock   sync.Mutex
	claims map[wire.OutPoint]string
}

// NewMemClaimer returns an in-memory Claimer.
func NewMemClaimer() Claimer {
	return &memClaimer{claims: make(map[wire.OutPoint]string)}
}

func (c *memClaimer) Claim(draftID string, outpoints []wire.OutPoint) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, op := range outpoints {
		if owner, ok := c.claims[op]; ok && owner != draftID {
			return fmt.Errorf("%w: %s", ErrDoubleSpendConflict, op)
		}
	}
	for _, op := range outpoints {
		c.claims[op] = draftID
	}
	return nil
}

func (c *memClaimer) Release(draftID string, outpoints []wire.OutPoint) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, op := range outpoints {
		if c.claims[op] == draftID {
			delete(c.claims, op)
		}
	}
	return nil
}

func (c *memClaimer) Transfer(
	fromDraftID, toDraftID string, outpoints []wire.OutPoint,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, op := range outpoints {
		if owner, ok := c.claims[op]; ok && owner != fromDraftID {
			return fmt.Errorf("%w: %s", ErrDoubleSpendConflict, op)
		}
	}
	for _, op := range outpoints {
		c.claims[op] = toDraftID
	}
	return nil
}
