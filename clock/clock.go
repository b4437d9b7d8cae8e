// Package clock bridges wall-clock time to the discrete slot model. Every
// node must agree on slot boundaries to coordinate proposals and
// attestations.
package clock

import (
	"time"

	"github.com/geanlabs/beacon/types"
)

// SlotClock converts wall-clock time to consensus slots. All time values
// are Unix seconds.
type SlotClock struct {
	GenesisTime    uint64
	SecondsPerSlot uint64

	timeFunc func() time.Time // injectable for testing
}

// New creates a SlotClock for the given genesis time and slot duration.
func New(genesisTime, secondsPerSlot uint64) *SlotClock {
	return &SlotClock{
		GenesisTime:    genesisTime,
		SecondsPerSlot: secondsPerSlot,
		timeFunc:       time.Now,
	}
}

// NewWithTimeFunc creates a SlotClock with a custom time source.
func NewWithTimeFunc(genesisTime, secondsPerSlot uint64, timeFunc func() time.Time) *SlotClock {
	return &SlotClock{
		GenesisTime:    genesisTime,
		SecondsPerSlot: secondsPerSlot,
		timeFunc:       timeFunc,
	}
}

func (c *SlotClock) secondsSinceGenesis() uint64 {
	now := uint64(c.timeFunc().Unix())
	if now < c.GenesisTime {
		return 0
	}
	return now - c.GenesisTime
}

// CurrentSlot returns the slot for the current time (0 before genesis).
func (c *SlotClock) CurrentSlot() types.Slot {
	return types.Slot(c.secondsSinceGenesis() / c.SecondsPerSlot)
}

// SlotStartTime returns the Unix timestamp at which slot begins.
func (c *SlotClock) SlotStartTime(slot types.Slot) uint64 {
	return c.GenesisTime + uint64(slot)*c.SecondsPerSlot
}

// IsFuture reports whether slot starts more than one slot duration ahead
// of the wall clock.
func (c *SlotClock) IsFuture(slot types.Slot) bool {
	now := uint64(c.timeFunc().Unix())
	return c.SlotStartTime(slot) > now+c.SecondsPerSlot
}

// UntilSlot returns the duration until slot begins (zero if reached).
func (c *SlotClock) UntilSlot(slot types.Slot) time.Duration {
	now := c.timeFunc()
	start := time.Unix(int64(c.SlotStartTime(slot)), 0)
	if !start.After(now) {
		return 0
	}
	return start.Sub(now)
}

// IsBeforeGenesis reports whether the wall clock precedes genesis.
func (c *SlotClock) IsBeforeGenesis() bool {
	return uint64(c.timeFunc().Unix()) < c.GenesisTime
}
