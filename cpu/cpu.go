// Package cpu holds per-hart kernel state: the interrupt-disable nesting
// that spinlocks rely on, the scheduler's context and the process running
// on the hart.
package cpu

import "time"

import xcpu "golang.org/x/sys/cpu"

import "rv6/hw"

// anything that can tell which hart it is running on.
type Hartctx_i interface {
	Cpu() *Cpu_t
}

type Cpu_t struct {
	_  xcpu.CacheLinePad
	Id int
	// the process running on this hart or nil.
	Proc any
	// swtch here to enter the scheduler.
	Context Context_t
	// depth of push_off nesting.
	Noff int
	// were interrupts enabled before push_off?
	Intena bool
	// sstatus.SIE
	sie  bool
	Hart *hw.Hart_t
	// classes of the spinlocks held, when lock order checking is on.
	Locks []string
	// the kernel trap vector. called with interrupts off when an
	// interrupt is pending and they are enabled.
	Trap func(c *Cpu_t)
	_    xcpu.CacheLinePad
}

func MkCpu(id int, h *hw.Hart_t) *Cpu_t {
	c := &Cpu_t{Id: id, Hart: h}
	c.Context.tp = c
	c.Context.resume = make(chan bool, 1)
	return c
}

func (c *Cpu_t) Cpu() *Cpu_t {
	return c
}

func (c *Cpu_t) Intr_get() bool {
	return c.sie
}

func (c *Cpu_t) Intr_off() {
	c.sie = false
}

// enables interrupts and takes any that are pending.
func (c *Cpu_t) Intr_on() {
	c.sie = true
	c.Poll()
}

// takes pending interrupts if they are enabled. the hosted harts are only
// interrupted at points where the kernel enables interrupts or calls Poll.
func (c *Cpu_t) Poll() {
	for c.sie && c.Hart.Pending() != 0 && c.Trap != nil {
		c.sie = false
		c.Trap(c)
		c.sie = true
	}
}

// push_off/pop_off are like intr_off()/intr_on() except that they are
// matched: it takes two pop_off()s to undo two push_off()s. also, if
// interrupts are initially off, then push_off, pop_off leaves them off.
func (c *Cpu_t) Push_off() {
	old := c.Intr_get()
	c.Intr_off()
	if c.Noff == 0 {
		c.Intena = old
	}
	c.Noff++
}

func (c *Cpu_t) Pop_off() {
	if c.Intr_get() {
		panic("pop_off - interruptible")
	}
	if c.Noff < 1 {
		panic("pop_off")
	}
	c.Noff--
	if c.Noff == 0 && c.Intena {
		c.Intr_on()
	}
}

// waits for an interrupt for at most d. returns false once the machine is
// stopped.
func (c *Cpu_t) Wfi(d time.Duration) bool {
	return c.Hart.Wfi(d)
}

// a table of every hart's state.
type Cpus_t []*Cpu_t

func MkCpus(m *hw.Machine_t) Cpus_t {
	ret := make(Cpus_t, len(m.Harts))
	for i, h := range m.Harts {
		ret[i] = MkCpu(i, h)
	}
	return ret
}

// wakes every idle hart so their schedulers look for work.
func (cs Cpus_t) Kick() {
	for _, c := range cs {
		c.Hart.Kick()
	}
}
