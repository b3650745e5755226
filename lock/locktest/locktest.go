// Package locktest provides kernel contexts for tests that run below the
// process layer: one hart per context and sleep queues keyed by wait
// channel.
package locktest

import "sync"
import "sync/atomic"

import "rv6/cpu"
import "rv6/hw"
import "rv6/lock"

type sched_t struct {
	sync.Mutex
	sleepers map[*lock.Waitchannel_t][]chan struct{}
}

type Ctx_t struct {
	c      *cpu.Cpu_t
	s      *sched_t
	pid    int
	killed atomic.Bool
}

// one context for each hart of m, all sharing one set of sleep queues.
func Mkctxs(m *hw.Machine_t) []*Ctx_t {
	s := &sched_t{sleepers: make(map[*lock.Waitchannel_t][]chan struct{})}
	var ret []*Ctx_t
	for i, c := range cpu.MkCpus(m) {
		ret = append(ret, &Ctx_t{c: c, s: s, pid: i + 1})
	}
	return ret
}

func (k *Ctx_t) Cpu() *cpu.Cpu_t {
	return k.c
}

func (k *Ctx_t) Pid() int {
	return k.pid
}

func (k *Ctx_t) Killed() bool {
	return k.killed.Load()
}

func (k *Ctx_t) Kill() {
	k.killed.Store(true)
}

func (k *Ctx_t) Sleep(wc *lock.Waitchannel_t, lk *lock.Spinlock_t) {
	ch := make(chan struct{})
	k.s.Lock()
	k.s.sleepers[wc] = append(k.s.sleepers[wc], ch)
	k.s.Unlock()
	lk.Release(k)
	<-ch
	lk.Acquire(k)
}

func (k *Ctx_t) Wakeup(wc *lock.Waitchannel_t) {
	k.s.Lock()
	for _, ch := range k.s.sleepers[wc] {
		close(ch)
	}
	delete(k.s.sleepers, wc)
	k.s.Unlock()
}

// the number of contexts asleep on wc.
func (k *Ctx_t) Nsleeping(wc *lock.Waitchannel_t) int {
	k.s.Lock()
	defer k.s.Unlock()
	return len(k.s.sleepers[wc])
}
