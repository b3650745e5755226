package lock

// a spinlock with a wait channel on which the holder may sleep. sleeping
// releases the lock and reacquires it before returning.
type Sleepablelock_t struct {
	Spinlock_t
	wc Waitchannel_t
}

func MkSleepablelock(name string) *Sleepablelock_t {
	l := &Sleepablelock_t{}
	l.Init(name)
	return l
}

func (l *Sleepablelock_t) Sleep(k Kctx_i) {
	if !l.Holding(k) {
		panic("sleep without " + l.name)
	}
	k.Sleep(&l.wc, &l.Spinlock_t)
}

func (l *Sleepablelock_t) Wakeup(k Kctx_i) {
	k.Wakeup(&l.wc)
}

// releases the lock while f runs. the caller's view of the protected data
// must be revalidated afterwards.
func (l *Sleepablelock_t) Reacquire_after(k Kctx_i, f func()) {
	l.Release(k)
	f()
	l.Acquire(k)
}

// long-term lock for processes. waiters sleep instead of spinning.
type Sleeplock_t struct {
	lk     Sleepablelock_t
	locked bool
	// pid of the holder
	pid int
}

func MkSleeplock(name string) *Sleeplock_t {
	l := &Sleeplock_t{}
	l.Init(name)
	return l
}

func (l *Sleeplock_t) Init(name string) {
	l.lk.Init(name)
	l.locked = false
	l.pid = 0
}

func (l *Sleeplock_t) Acquire(k Kctx_i) {
	l.lk.Acquire(k)
	for l.locked {
		l.lk.Sleep(k)
	}
	l.locked = true
	l.pid = k.Pid()
	l.lk.Release(k)
}

func (l *Sleeplock_t) Release(k Kctx_i) {
	l.lk.Acquire(k)
	if !l.locked {
		panic("releasesleep " + l.lk.name)
	}
	l.locked = false
	l.pid = 0
	l.lk.Wakeup(k)
	l.lk.Release(k)
}

// is the calling process holding the lock?
func (l *Sleeplock_t) Holding(k Kctx_i) bool {
	l.lk.Acquire(k)
	r := l.locked && l.pid == k.Pid()
	l.lk.Release(k)
	return r
}
