// Package cell defines the domain entities for residency units.
// This package is PURE and must NOT import any infrastructure packages.
package cell

// HoldingSlots is the fixed number of occupant slots in a holding unit.
const HoldingSlots = 3

// HoldingUnit is a transient unit with individually addressable slots.
// Each slot tracks its occupant id and an optional label (why they are held).
type HoldingUnit struct {
	ID     string               `json:"id"`
	Slots  [HoldingSlots]string `json:"slots"` // occupant ids, "" = free
	Labels [HoldingSlots]string `json:"labels"`
}

// NewHoldingUnit creates a holding unit with all slots free.
func NewHoldingUnit(id string) *HoldingUnit {
	return &HoldingUnit{ID: id}
}

// Assign places an occupant in the first free slot.
// Returns the slot index, or -1 if the unit is full.
func (h *HoldingUnit) Assign(occupantID, label string) int {
	for i := range h.Slots {
		if h.Slots[i] == "" {
			h.Slots[i] = occupantID
			h.Labels[i] = label
			return i
		}
	}
	return -1
}

// Remove frees the slot held by the occupant. Returns false if absent.
func (h *HoldingUnit) Remove(occupantID string) bool {
	for i := range h.Slots {
		if h.Slots[i] == occupantID {
			h.Slots[i] = ""
			h.Labels[i] = ""
			return true
		}
	}
	return false
}

// SlotOf returns the slot index held by the occupant, or -1.
func (h *HoldingUnit) SlotOf(occupantID string) int {
	for i := range h.Slots {
		if h.Slots[i] == occupantID {
			return i
		}
	}
	return -1
}

// Occupied returns the number of filled slots.
func (h *HoldingUnit) Occupied() int {
	n := 0
	for i := range h.Slots {
		if h.Slots[i] != "" {
			n++
		}
	}
	return n
}

// LongStayUnit is a cell in the long-stay pool. Capacity depends on the unit
// class: double units hold two concurrent occupants, single units hold one.
type LongStayUnit struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	Capacity  int      `json:"capacity"` // 1 or 2
	Occupants []string `json:"occupants"`
	IsLocked  bool     `json:"is_locked"`
}

// NewLongStayUnit creates an empty long-stay unit.
func NewLongStayUnit(id string, index, capacity int) *LongStayUnit {
	return &LongStayUnit{
		ID:        id,
		Index:     index,
		Capacity:  capacity,
		Occupants: make([]string, 0, capacity),
	}
}

// AddOccupant attempts to add an occupant. Returns false if the unit is full.
func (c *LongStayUnit) AddOccupant(occupantID string) bool {
	if len(c.Occupants) >= c.Capacity {
		return false
	}
	c.Occupants = append(c.Occupants, occupantID)
	return true
}

// RemoveOccupant removes an occupant from the unit. Returns false if absent.
func (c *LongStayUnit) RemoveOccupant(occupantID string) bool {
	for i, id := range c.Occupants {
		if id == occupantID {
			c.Occupants = append(c.Occupants[:i], c.Occupants[i+1:]...)
			return true
		}
	}
	return false
}

// HasSpace reports whether another occupant fits.
func (c *LongStayUnit) HasSpace() bool {
	return len(c.Occupants) < c.Capacity
}

// Holds reports whether the occupant is assigned to this unit.
func (c *LongStayUnit) Holds(occupantID string) bool {
	for _, id := range c.Occupants {
		if id == occupantID {
			return true
		}
	}
	return false
}
