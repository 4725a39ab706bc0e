// Package machine implements the machine context: it owns the device tree,
// the scheduler and the save registry, and drives the devices lifecycle.
package machine

import (
	"io"
	"strings"

	"github.com/go-faster/errors"

	"emucore/emu/log"
	"emucore/hw/device"
	"emucore/hw/hwdefs"
	"emucore/hw/hwio"
	"emucore/hw/save"
	"emucore/hw/sched"
)

type root struct {
	device.Device
}

type mapping struct {
	bus  *hwio.Table
	tag  string
	base uint16
}

// Machine is the context every device is started with.
type Machine struct {
	name  string
	root  root
	sched *sched.Scheduler
	save  *save.Registry

	maps    []mapping
	started bool
}

// New creates an empty machine driven by a master clock of masterHz.
func New(name string, masterHz uint64) *Machine {
	m := &Machine{
		name:  name,
		sched: sched.New(masterHz),
		save:  save.NewRegistry(name),
	}
	m.root.Init("", "root", masterHz)
	if err := device.Attach(nil, &m.root); err != nil {
		panic(err)
	}
	// The timer queue must be rebuilt before devices recompute their
	// derived state.
	m.save.OnPostLoad(m.sched.PostLoad)
	return m
}

func (m *Machine) Name() string                { return m.name }
func (m *Machine) Scheduler() *sched.Scheduler { return m.sched }
func (m *Machine) Save() *save.Registry        { return m.save }
func (m *Machine) Root() *device.Device        { return &m.root.Device }
func (m *Machine) Now() sched.Time             { return m.sched.Now() }
func (m *Machine) Started() bool               { return m.started }

// Add attaches impl under owner (the root device if owner is nil).
func (m *Machine) Add(owner, impl device.Interface) error {
	if m.started {
		return errors.Errorf("add %s: machine already started", impl.Dev().BaseTag())
	}
	o := &m.root.Device
	if owner != nil {
		o = owner.Dev()
	}
	return device.Attach(o, impl)
}

// MustAdd is like Add but panics on error.
func (m *Machine) MustAdd(owner, impl device.Interface) {
	if err := m.Add(owner, impl); err != nil {
		panic(err)
	}
}

// Map queues the installation of the register block of the device tagged tag
// at base in bus. Installs are performed by Start, in the order they were
// queued.
func (m *Machine) Map(bus *hwio.Table, tag string, base uint16) {
	m.maps = append(m.maps, mapping{bus: bus, tag: tag, base: base})
}

// Device returns the device with the given full tag, or nil.
func (m *Machine) Device(tag string) device.Interface {
	if tag == ":" {
		return &m.root
	}
	d := &m.root.Device
	for _, part := range strings.Split(strings.TrimPrefix(tag, ":"), ":") {
		if d = d.Child(part); d == nil {
			return nil
		}
	}
	return d.Impl()
}

// Walk calls fn on every device, depth first, in registration order.
func (m *Machine) Walk(fn func(*device.Device)) {
	m.root.Walk(fn)
}

// Start starts all devices, closes state registration and performs a hard
// reset.
func (m *Machine) Start() (err error) {
	if m.started {
		return errors.New("machine already started")
	}
	defer m.recover(&err)

	var serr error
	m.Walk(func(d *device.Device) {
		if serr != nil {
			return
		}
		serr = m.startDevice(d)
	})
	if serr != nil {
		return serr
	}

	if err := m.sched.RegisterState(m.save); err != nil {
		return errors.Wrap(err, "scheduler state")
	}

	for _, mp := range m.maps {
		impl := m.Device(mp.tag)
		if impl == nil {
			return errors.Errorf("map: no device %q", mp.tag)
		}
		mem := impl.Dev().Resolve().Memory
		if mem == nil {
			return errors.Errorf("map: device %s is not memory mapped", mp.tag)
		}
		mem.InstallMap(mp.bus, mp.base)
	}
	m.maps = nil

	m.save.Close()
	m.started = true
	log.ModEmu.InfoZ("machine started").
		String("name", m.name).
		Int("items", m.save.NumItems()).
		Int("state_bytes", m.save.DataSize()).
		End()

	m.Reset(hwdefs.HardReset)
	return nil
}

func (m *Machine) startDevice(d *device.Device) error {
	if st, ok := d.Impl().(device.Starter); ok {
		if err := st.Start(m); err != nil {
			return errors.Wrapf(err, "start %s", d.Tag())
		}
	}
	for _, it := range d.TakeSaveItems() {
		if err := m.save.Register(it.Name, it.Ptr); err != nil {
			return errors.Wrapf(err, "start %s", d.Tag())
		}
	}

	caps := d.Resolve()
	if caps.Exec != nil {
		m.sched.AddExecutor(d.Tag(), caps.Exec)
	}
	if ps, ok := d.Impl().(device.PreSaver); ok {
		m.save.OnPreSave(ps.PreSave)
	}
	if pl, ok := d.Impl().(device.PostLoader); ok {
		m.save.OnPostLoad(pl.PostLoad)
	}
	log.ModEmu.DebugZ("device started").
		String("tag", d.Tag()).
		String("kind", d.Kind()).
		Uint64("clock", d.ClockHz()).
		End()
	return nil
}

// Reset resets every device, in registration order.
func (m *Machine) Reset(soft bool) {
	log.ModEmu.InfoZ("reset").
		String("name", m.name).
		Bool("soft", soft).
		End()
	m.Walk(func(d *device.Device) {
		if r, ok := d.Impl().(device.Resetter); ok {
			r.Reset(soft)
		}
	})
}

// Stop calls the stop hook of every device.
func (m *Machine) Stop() {
	m.Walk(func(d *device.Device) {
		if s, ok := d.Impl().(device.Stopper); ok {
			s.Stop()
		}
	})
}

// Run advances the machine by d ticks of the master clock. A fatal device
// error stops the machine and is returned.
func (m *Machine) Run(d sched.Time) (err error) {
	return m.RunUntil(m.sched.Now() + d)
}

// RunUntil advances the machine up to time t.
func (m *Machine) RunUntil(t sched.Time) (err error) {
	if !m.started {
		return errors.New("machine not started")
	}
	defer m.recover(&err)
	m.sched.Run(t)
	return nil
}

// SaveState writes the machine state to w.
func (m *Machine) SaveState(w io.Writer) error {
	return m.save.Write(w)
}

// LoadState restores a state written by SaveState.
func (m *Machine) LoadState(r io.Reader) (err error) {
	defer m.recover(&err)
	return m.save.Read(r)
}

// pcGetter is implemented by executors that can report the PC of the
// instruction in progress.
type pcGetter interface {
	CurrentPC() uint16
}

// recover turns a fatal device error into an error, filling in the PC of the
// current executor if the device didn't provide one.
func (m *Machine) recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	ferr, ok := r.(*device.FatalError)
	if !ok {
		panic(r)
	}
	if !ferr.HasPC {
		if pg, ok := m.sched.Current().(pcGetter); ok {
			ferr.PC, ferr.HasPC = pg.CurrentPC(), true
		}
	}
	m.sched.Unwind()
	log.ModEmu.ErrorZ("fatal error").
		String("tag", ferr.Tag).
		Hex16("pc", ferr.PC).
		String("msg", ferr.Msg).
		End()
	*errp = ferr
}

// AddLogContext adds the current virtual time to log entries.
func (m *Machine) AddLogContext(z *log.EntryZ) {
	z.Uint64("time", uint64(m.sched.Now()))
}
