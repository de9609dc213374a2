// Package snowflake generates 63-bit, time-ordered, machine-scoped
// identifiers for every orchestration entity (jobs, tasks, groups).
package snowflake

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	timestampBits = 41
	machineBits   = 10
	sequenceBits  = 12

	maxMachineID  = (1 << machineBits) - 1
	maxSequence   = (1 << sequenceBits) - 1
	machineShift  = sequenceBits
	timestampShift = sequenceBits + machineBits

	// epoch anchors the 41-bit timestamp field; chosen arbitrarily as the
	// project's inception so the field doesn't overflow for decades.
	epochMillis = int64(1735689600000) // 2025-01-01T00:00:00Z
)

// ErrClockMovedBackwards is returned when the system clock regresses below
// the last timestamp this generator observed. The caller must not proceed:
// IDs generated past this point could collide with or precede earlier ones.
var ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")

// Generator produces monotonically increasing IDs for one machine ID.
type Generator struct {
	mu        sync.Mutex
	machineID int64
	lastMilli int64
	sequence  int64
	now       func() time.Time
}

// NewGenerator constructs a Generator for machineID, which must fit in 10
// bits (0..1023).
func NewGenerator(machineID int64) (*Generator, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, errors.Errorf("snowflake: machine id %d out of range [0,%d]", machineID, maxMachineID)
	}
	return &Generator{machineID: machineID, now: time.Now}, nil
}

// Next returns a single new ID.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked()
}

// NextBatch returns n distinct, increasing IDs, spanning multiple
// milliseconds if the sequence space within one millisecond is exhausted.
func (g *Generator) NextBatch(n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		id, err := g.nextLocked()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (g *Generator) nextLocked() (int64, error) {
	milli := g.now().UnixMilli()

	if milli < g.lastMilli {
		return 0, ErrClockMovedBackwards
	}

	if milli == g.lastMilli {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence space for this millisecond is exhausted; spin until
			// the clock ticks forward.
			for milli <= g.lastMilli {
				milli = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMilli = milli

	id := ((milli - epochMillis) << timestampShift) |
		(g.machineID << machineShift) |
		g.sequence
	return id, nil
}
