package hw

import "sync/atomic"
import "time"

// sip bits
const (
	SSIP uint32 = 1 << 1
	STIP uint32 = 1 << 5
	SEIP uint32 = 1 << 9
)

// the interrupt lines of one hart.
type Hart_t struct {
	Id   int
	pend uint32
	wake chan struct{}
	stop chan struct{}
}

func mkHart(id int, stop chan struct{}) *Hart_t {
	return &Hart_t{Id: id, wake: make(chan struct{}, 1), stop: stop}
}

func (h *Hart_t) Raise(bits uint32) {
	for {
		o := atomic.LoadUint32(&h.pend)
		if atomic.CompareAndSwapUint32(&h.pend, o, o|bits) {
			break
		}
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hart_t) Clear(bits uint32) {
	for {
		o := atomic.LoadUint32(&h.pend)
		if atomic.CompareAndSwapUint32(&h.pend, o, o&^bits) {
			return
		}
	}
}

func (h *Hart_t) Pending() uint32 {
	return atomic.LoadUint32(&h.pend)
}

// waits for an interrupt, the machine being stopped, or at most d. returns
// false if the machine stopped.
func (h *Hart_t) Wfi(d time.Duration) bool {
	if h.Stopped() {
		return false
	}
	if h.Pending() != 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.wake:
	case <-t.C:
	case <-h.stop:
	}
	// a leftover wake token may win the select over stop.
	return !h.Stopped()
}

func (h *Hart_t) Stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// wakes the hart from Wfi without raising an interrupt.
func (h *Hart_t) Kick() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}
