// Package device defines the device entity shared by every emulated chip or
// board: its place in the machine tree, its debugger-visible state entries,
// its save items and its capability records.
package device

import (
	"emucore/hw/save"
	"emucore/hw/sched"
)

// Interface is implemented by every device, usually by embedding Device.
type Interface interface {
	Dev() *Device
}

// Context is what a device sees of its machine.
type Context interface {
	Scheduler() *sched.Scheduler
	Save() *save.Registry

	// Reset resets the whole machine. It may be called from a timer
	// callback (watchdog).
	Reset(soft bool)
}

// Lifecycle hooks, called by the machine when implemented.
type (
	Starter interface {
		Start(ctx Context) error
	}
	Resetter interface {
		Reset(soft bool)
	}
	PreSaver interface {
		PreSave()
	}
	PostLoader interface {
		PostLoad()
	}
	Stopper interface {
		Stop()
	}
)

// Device is the common part of all devices.
type Device struct {
	tag      string
	kind     string
	clock    uint64
	owner    *Device
	children []*Device
	impl     Interface

	started bool
	state   []*StateEntry
	stateIx map[int]*StateEntry
	items   []SaveItem
	caps    *Caps
}

// SaveItem is a piece of state queued for the save registry.
type SaveItem struct {
	Name string
	Ptr  any
}

// Init sets the identity of the device. Devices call it from their
// constructor.
func (d *Device) Init(tag, kind string, clock uint64) {
	d.tag = tag
	d.kind = kind
	d.clock = clock
}

func (d *Device) Dev() *Device { return d }

func (d *Device) Kind() string        { return d.kind }
func (d *Device) ClockHz() uint64     { return d.clock }
func (d *Device) Owner() *Device      { return d.owner }
func (d *Device) Children() []*Device { return d.children }
func (d *Device) Impl() Interface     { return d.impl }
func (d *Device) Started() bool       { return d.started }

// BaseTag returns the tag of the device relative to its owner.
func (d *Device) BaseTag() string { return d.tag }

// Tag returns the full tag of the device, like ":slot1:card".
func (d *Device) Tag() string {
	switch {
	case d.owner == nil:
		return ":"
	case d.owner.owner == nil:
		return ":" + d.tag
	}
	return d.owner.Tag() + ":" + d.tag
}

func (d *Device) String() string {
	return d.Tag() + " (" + d.kind + ")"
}

// Attach binds impl to its Device and adds it as a child of owner. The root
// device has a nil owner.
func Attach(owner *Device, impl Interface) error {
	d := impl.Dev()
	if d.impl != nil {
		return fatalf(d, "device already attached")
	}
	d.impl = impl
	if owner == nil {
		return nil
	}
	for _, c := range owner.children {
		if c.tag == d.tag {
			return fatalf(d, "duplicate tag %q under %s", d.tag, owner.Tag())
		}
	}
	d.owner = owner
	owner.children = append(owner.children, d)
	return nil
}

// SaveItem queues a save item. The machine moves queued items into its save
// registry, prefixed with the device tag, once the device has started. ptr
// is a pointer to the value, or a slice whose elements are saved.
func (d *Device) SaveItem(name string, ptr any) {
	if d.started {
		d.Fatalf("save item %q registered after start", name)
	}
	d.items = append(d.items, SaveItem{Name: name, Ptr: ptr})
}

// TakeSaveItems returns the queued save items, with full names, and marks
// the device as started: state registration is closed.
func (d *Device) TakeSaveItems() []SaveItem {
	items := d.items
	d.items = nil
	prefix := d.Tag() + "/"
	for i := range items {
		items[i].Name = prefix + items[i].Name
	}
	d.started = true
	return items
}

// Walk calls fn on d and all its descendants, depth first, in attachment
// order.
func (d *Device) Walk(fn func(*Device)) {
	fn(d)
	for _, c := range d.children {
		c.Walk(fn)
	}
}

// Child returns the direct child with the given base tag.
func (d *Device) Child(tag string) *Device {
	for _, c := range d.children {
		if c.tag == tag {
			return c
		}
	}
	return nil
}
