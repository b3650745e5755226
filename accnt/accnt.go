package accnt

import "fmt"
import "sync"
import "sync/atomic"
import "time"

import "rv6/util"

// per-process cpu time. user time is charged from trap entry/exit stamps,
// system time from the interval between trap entry and return to user.
type Accnt_t struct {
	// nanoseconds
	Userns int64
	Sysns  int64
	// for a consistent snapshot of both times; not always needed
	sync.Mutex
}

func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// time spent asleep is not system time.
func (a *Accnt_t) Sleep_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// folds a reaped child's times into a.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.Unlock()
}

func (a *Accnt_t) Reset() {
	atomic.StoreInt64(&a.Userns, 0)
	atomic.StoreInt64(&a.Sysns, 0)
}

// the user and system timevals as four 8-byte words.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	defer a.Unlock()
	ret := make([]uint8, 4*8)
	totv := func(nano int64) (int, int) {
		return int(nano / 1e9), int((nano % 1e9) / 1000)
	}
	s, us := totv(atomic.LoadInt64(&a.Userns))
	util.Writen(ret, 8, 0, s)
	util.Writen(ret, 8, 8, us)
	s, us = totv(atomic.LoadInt64(&a.Sysns))
	util.Writen(ret, 8, 16, s)
	util.Writen(ret, 8, 24, us)
	return ret
}

func (a *Accnt_t) String() string {
	u := time.Duration(atomic.LoadInt64(&a.Userns))
	s := time.Duration(atomic.LoadInt64(&a.Sysns))
	return fmt.Sprintf("u %v s %v", u.Round(time.Microsecond),
		s.Round(time.Microsecond))
}
