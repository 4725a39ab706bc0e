// Package periph hosts on-chip peripherals (serial ports, timers) that only
// compute their state when accessed or when their next event is due.
package periph

import (
	"emucore/emu/log"
	"emucore/hw/device"
)

// EventSource is a peripheral driven by its host. InternalUpdate catches up
// with now, a cycle count in the host clock, and returns the cycle of the
// next event, or 0 if none is pending. Calling it twice with the same now
// and no register access in between returns the same value.
type EventSource interface {
	InternalUpdate(now uint64) uint64
}

// Host is what a peripheral sees of the device hosting it.
type Host interface {
	// TotalCycles returns the current time in host cycles.
	TotalCycles() uint64

	// InternalUpdate recomputes the next event of all peripherals. Called
	// by peripherals after register writes that change their timing.
	InternalUpdate()

	// Synchronize lets other devices catch up before the next access.
	Synchronize()
}

// Hub collects the event sources of a host.
type Hub struct {
	owner   *device.Device
	sources []EventSource
	next    uint64

	busy  bool
	dirty bool
}

func NewHub(owner *device.Device) *Hub {
	return &Hub{owner: owner}
}

// Add registers a source. Sources are updated in registration order.
func (h *Hub) Add(src EventSource) {
	h.sources = append(h.sources, src)
}

// RegisterState saves the pending event along with the owner's state.
func (h *Hub) RegisterState(owner *device.Device) {
	owner.SaveItem("periph_next", &h.next)
}

// Next returns the next event computed by the last update, 0 if none.
func (h *Hub) Next() uint64 { return h.next }

// Due reports whether the next event is due at now.
func (h *Hub) Due(now uint64) bool {
	return h.next != 0 && now >= h.next
}

// Update updates all sources and returns the closest next event. Updates
// requested while sources are being updated are merged into the current one.
func (h *Hub) Update(now uint64) uint64 {
	if h.busy {
		h.dirty = true
		return h.next
	}
	h.busy = true
	defer func() { h.busy = false }()

	for {
		h.dirty = false
		var next uint64
		for _, src := range h.sources {
			ev := src.InternalUpdate(now)
			if ev == 0 {
				continue
			}
			if ev <= now {
				h.owner.Fatalf("peripheral %T returned a past event %d at %d", src, ev, now)
			}
			if next == 0 || ev < next {
				next = ev
			}
		}
		h.next = next
		if !h.dirty {
			break
		}
		log.ModPeriph.DebugZ("nested update").
			String("host", h.owner.Tag()).
			Uint64("now", now).
			End()
	}
	return h.next
}
