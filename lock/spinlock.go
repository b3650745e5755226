// Package lock provides the kernel's mutual exclusion primitives: spinlocks
// that disable interrupts on the holding hart, sleepable spinlocks whose
// holder may wait on a channel, sleep locks for long-held contents and
// remote locks guarding data with somebody else's spinlock.
package lock

import "runtime"
import "sync/atomic"

import "rv6/cpu"
import "rv6/lockdep"

// when non-nil every spinlock acquisition is recorded here.
var Lockdep *lockdep.Lockdep_t

// mutual exclusion lock. interrupts stay off on the holding hart so that an
// interrupt handler cannot deadlock against the code it interrupted.
type Spinlock_t struct {
	locked uint32
	name   string
	// the hart holding the lock
	cpu atomic.Pointer[cpu.Cpu_t]
}

func MkSpinlock(name string) *Spinlock_t {
	l := &Spinlock_t{}
	l.Init(name)
	return l
}

func (l *Spinlock_t) Init(name string) {
	l.name = name
}

func (l *Spinlock_t) Name() string {
	return l.name
}

// loops until the lock is acquired.
func (l *Spinlock_t) Acquire(h cpu.Hartctx_i) {
	// disable interrupts to avoid deadlock.
	c := h.Cpu()
	c.Push_off()
	if l.holding(c) {
		panic("acquire " + l.name)
	}
	for !atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
		runtime.Gosched()
	}
	l.cpu.Store(c)
	if Lockdep != nil {
		Lockdep.Acquire(c.Locks, l.name)
		c.Locks = append(c.Locks, l.name)
	}
}

func (l *Spinlock_t) Release(h cpu.Hartctx_i) {
	c := h.Cpu()
	if !l.holding(c) {
		panic("release " + l.name)
	}
	if Lockdep != nil {
		for i := len(c.Locks) - 1; i >= 0; i-- {
			if c.Locks[i] == l.name {
				c.Locks = append(c.Locks[:i], c.Locks[i+1:]...)
				break
			}
		}
	}
	l.cpu.Store(nil)
	atomic.StoreUint32(&l.locked, 0)
	c.Pop_off()
}

func (l *Spinlock_t) holding(c *cpu.Cpu_t) bool {
	return atomic.LoadUint32(&l.locked) != 0 && l.cpu.Load() == c
}

// is this hart holding the lock? interrupts must be off.
func (l *Spinlock_t) Holding(h cpu.Hartctx_i) bool {
	return l.holding(h.Cpu())
}
