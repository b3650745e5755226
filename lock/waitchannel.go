package lock

import "rv6/cpu"

// the kernel context of the running thread: the hart it is on and the
// process, if any, that it runs for.
type Kctx_i interface {
	cpu.Hartctx_i
	// atomically releases lk and sleeps on wc. reacquires lk when woken.
	Sleep(wc *Waitchannel_t, lk *Spinlock_t)
	// wakes every process sleeping on wc.
	Wakeup(wc *Waitchannel_t)
	Killed() bool
	Pid() int
}

// a rendezvous point identified by its address. it must not be zero-sized
// so that distinct channels have distinct addresses.
type Waitchannel_t struct {
	_ uint8
}

func (wc *Waitchannel_t) Sleep(lk *Spinlock_t, k Kctx_i) {
	k.Sleep(wc, lk)
}

func (wc *Waitchannel_t) Wakeup(k Kctx_i) {
	k.Wakeup(wc)
}
