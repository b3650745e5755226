package proc

import "fmt"

import "rv6/cpu"
import "rv6/lock"

// per-hart process scheduler. each hart calls Scheduler after setting
// itself up. Scheduler returns only once the machine is stopped.
//   - choose a process to run.
//   - swtch to start running that process.
//   - eventually that process transfers control via swtch back to the
//     scheduler.
func (ps *Procs_t) Scheduler(c *cpu.Cpu_t) {
	hk := ps.Hartk(c)
	c.Proc = nil
	for !c.Hart.Stopped() {
		// the most recent process to run may have had interrupts turned
		// off; enable them to avoid a deadlock if all processes are
		// waiting.
		c.Intr_on()
		found := false
		for i := range ps.procs {
			p := &ps.procs[i]
			p.lk.Acquire(hk)
			if p.state == RUNNABLE {
				// switch to the chosen process. it is the process's
				// job to release its lock and then reacquire it before
				// jumping back to us.
				p.state = RUNNING
				c.Proc = p
				if sched_debug {
					fmt.Printf("hart %d runs %d %s\n", c.Id, p.pid, p.Name)
				}
				cpu.Swtch(&c.Context, &p.Context)
				// the process is done running for now.
				c.Proc = nil
				found = true
			}
			p.lk.Release(hk)
		}
		if !found {
			// nothing to run; stop running on this core until an
			// interrupt or a wakeup.
			if !c.Wfi(ps.Idle) {
				break
			}
		}
	}
}

// switch to the scheduler. must hold only p.lk and have changed p.state.
// saves and restores intena because intena is a property of this kernel
// thread, not this hart.
func (p *Proc_t) sched() {
	c := p.Cpu()
	if !p.lk.Holding(p) {
		panic("sched p->lock")
	}
	if c.Noff != 1 {
		panic("sched locks")
	}
	if p.state == RUNNING {
		panic("sched running")
	}
	if c.Intr_get() {
		panic("sched interruptible")
	}
	intena := c.Intena
	p.procs.st.Nswtch.Inc()
	cpu.Swtch(&p.Context, &c.Context)
	// possibly on another hart now
	p.Cpu().Intena = intena
}

// give up the hart for one scheduling round.
func (p *Proc_t) Yield() {
	p.lk.Acquire(p)
	p.state = RUNNABLE
	p.sched()
	p.lk.Release(p)
}

// atomically release lk and sleep on wc. reacquires lk when awakened.
func (p *Proc_t) Sleep(wc *lock.Waitchannel_t, lk *lock.Spinlock_t) {
	// once we hold p.lk we are guaranteed not to miss any wakeup since
	// wakeup locks p.lk, so it's okay to release lk.
	p.lk.Acquire(p)
	lk.Release(p)
	since := p.Atime.Now()
	p.wchan = wc
	p.state = SLEEPING
	p.sched()
	p.wchan = nil
	p.Atime.Sleep_time(since)
	p.lk.Release(p)
	lk.Acquire(p)
}

func (p *Proc_t) Wakeup(wc *lock.Waitchannel_t) {
	p.procs.wakeup(p, p, wc)
}

// wake up all processes sleeping on wc other than me. must be called
// without any p.lk.
func (ps *Procs_t) wakeup(h cpu.Hartctx_i, me *Proc_t, wc *lock.Waitchannel_t) {
	woke := false
	for i := range ps.procs {
		p := &ps.procs[i]
		if p == me {
			continue
		}
		p.lk.Acquire(h)
		if p.state == SLEEPING && p.wchan == wc {
			p.state = RUNNABLE
			woke = true
		}
		p.lk.Release(h)
	}
	if woke {
		ps.Cpus.Kick()
	}
}
