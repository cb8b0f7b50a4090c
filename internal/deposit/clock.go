package deposit

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for the ledger and publication dates.
// It also satisfies zenodo.Clock.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces operation IDs for ledger entries.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
