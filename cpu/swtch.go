package cpu

import "runtime"

// saved kernel thread state. each context is a goroutine; only the one
// that was switched to most recently on a hart runs, the rest are parked on
// their resume channel.
type Context_t struct {
	// kernel stack top
	Sp uint64
	// the hart the context last ran on; plays the role of tp.
	tp *Cpu_t
	// receives true when the context is retired.
	resume chan bool
	entry  func()
}

// prepares a fresh context that starts running entry the first time it is
// switched to.
func (x *Context_t) Init(sp uint64, entry func()) {
	x.Sp = sp
	x.tp = nil
	x.resume = make(chan bool, 1)
	x.entry = entry
}

// the hart the context is running on.
func (x *Context_t) Cpu() *Cpu_t {
	return x.tp
}

// saves the current thread in old and resumes new on the same hart.
// returns when some hart switches back to old.
func Swtch(old, new *Context_t) {
	// old may be retired and reinitialized as soon as new runs
	wait := old.resume
	new.tp = old.tp
	if f := new.entry; f != nil {
		new.entry = nil
		go f()
	} else {
		new.resume <- false
	}
	if <-wait {
		runtime.Goexit()
	}
}

// releases the goroutine of a context that will never run again. the
// context must be parked in Swtch, or never started.
func (x *Context_t) Retire() {
	if x.resume == nil {
		return
	}
	if x.entry != nil {
		x.entry = nil
		return
	}
	x.resume <- true
	x.resume = nil
}
