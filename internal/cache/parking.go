package cache

import (
	"errors"
	"sync"

	"github.com/dennisdiepolder/monti/switchboard/internal/types"
)

var (
	ErrSlotNotFound = errors.New("parking slot not found")
	ErrSlotOccupied = errors.New("parking slot occupied")
)

// ParkingRegistry is a fixed set of numbered slots, 1..n
type ParkingRegistry struct {
	slots []types.ParkingSlot
	mu    sync.RWMutex
}

// NewParkingRegistry creates n empty slots. The count never changes afterwards.
func NewParkingRegistry(n int) *ParkingRegistry {
	slots := make([]types.ParkingSlot, n)
	for i := range slots {
		slots[i].SlotID = i + 1
	}
	return &ParkingRegistry{slots: slots}
}

func (p *ParkingRegistry) slot(slotID int) *types.ParkingSlot {
	if slotID < 1 || slotID > len(p.slots) {
		return nil
	}
	return &p.slots[slotID-1]
}

// Occupy parks callID in the slot if it is free
func (p *ParkingRegistry) Occupy(slotID int, callID string) (types.ParkingSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.slot(slotID)
	if slot == nil {
		return types.ParkingSlot{}, ErrSlotNotFound
	}
	if slot.CallID == callID {
		return *slot, nil
	}
	if slot.Occupied() {
		return *slot, ErrSlotOccupied
	}

	slot.CallID = callID
	slot.Revision++
	return *slot, nil
}

// Vacate frees the slot if it still holds callID
func (p *ParkingRegistry) Vacate(slotID int, callID string) (types.ParkingSlot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.slot(slotID)
	if slot == nil || slot.CallID != callID {
		return types.ParkingSlot{}, false
	}

	slot.CallID = ""
	slot.Revision++
	return *slot, true
}

// Get returns a copy of one slot
func (p *ParkingRegistry) Get(slotID int) (types.ParkingSlot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	slot := p.slot(slotID)
	if slot == nil {
		return types.ParkingSlot{}, false
	}
	return *slot, true
}

// GetAll returns every slot in numeric order
func (p *ParkingRegistry) GetAll() []types.ParkingSlot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.ParkingSlot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Count returns the fixed number of slots
func (p *ParkingRegistry) Count() int {
	return len(p.slots)
}
