package proc

import "rv6/cpu"
import "rv6/defs"
import "rv6/file"
import "rv6/limits"
import "rv6/riscv"
import "rv6/ustr"
import "rv6/util"
import "rv6/vm"

// sets up the first user process. initcode is loaded at address 0 and
// starts running there.
func (ps *Procs_t) Userinit(h cpu.Hartctx_i, initcode []uint8) defs.Err_t {
	p, err := ps.allocproc(h)
	if err != 0 {
		return err
	}
	um, err := vm.Mkusermem(h, ps.phys, ps.tramp, p.Tfpa)
	if err == 0 {
		p.Um = um
		err = um.First(h, initcode)
	}
	if err != 0 {
		ps.freeproc(h, p)
		p.lk.Release(h)
		return err
	}
	// user program counter and stack pointer
	p.Tf.Epc = 0
	p.Tf.Sp = riscv.PGSIZE
	p.Name = "initcode"
	ps.initproc = p
	p.state = RUNNABLE
	p.lk.Release(h)
	return 0
}

// creates a process whose kernel thread runs fn and then exits. its
// parent is the init process.
func (ps *Procs_t) Spawn(h cpu.Hartctx_i, name string, fn func(p *Proc_t)) (*Proc_t, defs.Err_t) {
	if !limits.Syslimit.Ktasks.Take() {
		return nil, -defs.EAGAIN
	}
	p, err := ps.allocproc(h)
	if err != 0 {
		limits.Syslimit.Ktasks.Give()
		return nil, err
	}
	p.ktask = fn
	p.Name = name
	p.lk.Release(h)

	ps.waitlock.Acquire(h)
	init := ps.initproc
	*p.parent.Get(h) = init
	ps.waitlock.Release(h)

	p.lk.Acquire(h)
	p.state = RUNNABLE
	p.lk.Release(h)
	ps.Cpus.Kick()
	return p, 0
}

// a kernel init for machines booted without a user init program. it only
// reaps orphaned and spawned processes.
func (ps *Procs_t) Kinit(h cpu.Hartctx_i) defs.Err_t {
	p, err := ps.Spawn(h, "kinit", func(p *Proc_t) {
		for {
			p.wait(0, nil, true)
		}
	})
	if err != 0 {
		return err
	}
	ps.waitlock.Acquire(h)
	*p.parent.Get(h) = nil
	ps.initproc = p
	ps.waitlock.Release(h)
	return 0
}

// grow or shrink user memory by n bytes. returns the old size.
func (p *Proc_t) Growproc(n int) (uint64, defs.Err_t) {
	return p.Um.Sbrk(p, n)
}

// creates a new process, copying the parent. sets up the child kernel
// stack to return as if from the fork() system call.
func (p *Proc_t) Fork() (int, defs.Err_t) {
	ps := p.procs
	np, err := ps.allocproc(p)
	if err != 0 {
		return 0, err
	}
	// copy user memory from parent to child.
	um, err := p.Um.Clone(p, np.Tfpa)
	if err != 0 {
		ps.freeproc(p, np)
		np.lk.Release(p)
		return 0, err
	}
	np.Um = um
	// copy saved user registers, including the continuation in t0.
	*np.Tf = *p.Tf
	// cause fork to return 0 in the child.
	np.Tf.A0 = 0
	np.Name = p.Name
	pid := np.pid
	// np is USED, so no other hart looks at its files.
	np.lk.Release(p)
	p.adopt(np)
	ps.st.Nfork.Inc()
	return pid, 0
}

// gives np p's open files and working directory, makes p its parent and
// lets it run.
func (p *Proc_t) adopt(np *Proc_t) {
	ps := p.procs
	// increment reference counts on open file descriptors.
	for i, f := range p.Ofile {
		if f != nil {
			np.Ofile[i] = file.Copyfd(p, f)
		}
	}
	if p.Cwd != nil {
		np.Cwd = p.Cwd.Dup(p)
	}

	ps.waitlock.Acquire(p)
	*np.parent.Get(p) = p
	ps.waitlock.Release(p)

	np.lk.Acquire(p)
	np.state = RUNNABLE
	np.lk.Release(p)
	ps.Cpus.Kick()
}

// starts a child of p that execs path with argv, with p's files and
// working directory. p need not have user memory, so kernel tasks use
// this to run programs and wait for them. a child whose exec fails exits
// with status -1.
func (p *Proc_t) Spawnprog(path ustr.Ustr, argv []ustr.Ustr) (int, defs.Err_t) {
	ps := p.procs
	if !limits.Syslimit.Ktasks.Take() {
		return 0, -defs.EAGAIN
	}
	np, err := ps.allocproc(p)
	if err != 0 {
		limits.Syslimit.Ktasks.Give()
		return 0, err
	}
	np.ktask = func(np *Proc_t) {
		argc, err := np.Exec(path, argv)
		if err != 0 {
			np.Exit(-1)
		}
		np.Tf.A0 = uint64(argc)
		ps.Userret(np)
		panic("userret returned")
	}
	np.Name = "spawn"
	pid := np.pid
	np.lk.Release(p)
	p.adopt(np)
	return pid, 0
}

// pass p's abandoned children to init. caller must hold the wait lock.
func (ps *Procs_t) reparent(p *Proc_t) {
	for i := range ps.procs {
		pp := &ps.procs[i]
		if *pp.parent.Get(p) == p {
			*pp.parent.Get(p) = ps.initproc
			if ps.initproc != nil {
				p.Wakeup(&ps.initproc.childwc)
			}
		}
	}
}

// exit the current process. does not return. an exited process remains in
// the zombie state until its parent calls wait().
func (p *Proc_t) Exit(status int) {
	ps := p.procs
	if p == ps.initproc {
		panic("init exiting")
	}
	// close all open files.
	for i, f := range p.Ofile {
		if f != nil {
			f.Close(p)
			p.Ofile[i] = nil
		}
	}
	if p.Cwd != nil {
		tx := ps.Fs.Begin(p)
		p.Cwd.Put(p)
		tx.End(p)
		p.Cwd = nil
	}

	ps.waitlock.Acquire(p)
	// give any children to init.
	ps.reparent(p)
	// parent might be sleeping in wait().
	if parent := *p.parent.Get(p); parent != nil {
		p.Wakeup(&parent.childwc)
	}
	p.lk.Acquire(p)
	p.xstate = status
	p.state = ZOMBIE
	ps.waitlock.Release(p)
	ps.st.Nexit.Inc()

	// jump into the scheduler, never to return.
	p.sched()
	panic("zombie exit")
}

// waits for a child process to exit and returns its pid. copies the exit
// status to user address addr unless it is zero.
func (p *Proc_t) Wait(addr uint64) (int, defs.Err_t) {
	return p.wait(addr, nil, false)
}

// like Wait, for kernel callers: returns the exit status.
func (p *Proc_t) Waitstatus() (int, int, defs.Err_t) {
	var st int
	pid, err := p.wait(0, &st, false)
	return pid, st, err
}

// with anyway set, waits even when there are no children yet.
func (p *Proc_t) wait(addr uint64, status *int, anyway bool) (int, defs.Err_t) {
	ps := p.procs
	ps.waitlock.Acquire(p)
	for {
		// scan through table looking for exited children.
		havekids := false
		for i := range ps.procs {
			pp := &ps.procs[i]
			if *pp.parent.Get(p) != p {
				continue
			}
			// make sure the child isn't still in exit() or swtch().
			pp.lk.Acquire(p)
			havekids = true
			if pp.state == ZOMBIE {
				pid := pp.pid
				if addr != 0 {
					var b [4]uint8
					util.Writen(b[:], 4, 0, pp.xstate)
					if err := p.Um.Copyout(addr, b[:]); err != 0 {
						pp.lk.Release(p)
						ps.waitlock.Release(p)
						return 0, err
					}
				}
				if status != nil {
					*status = pp.xstate
				}
				p.Catime.Add(&pp.Atime)
				ps.freeproc(p, pp)
				pp.lk.Release(p)
				ps.waitlock.Release(p)
				return pid, 0
			}
			pp.lk.Release(p)
		}
		// no point waiting if we don't have any children.
		if !havekids && !anyway {
			ps.waitlock.Release(p)
			return 0, -defs.ECHILD
		}
		if p.Killed() {
			ps.waitlock.Release(p)
			return 0, -defs.EINTR
		}
		// wait for a child to exit.
		p.Sleep(&p.childwc, &ps.waitlock)
	}
}

// kill the process with the given pid. the victim won't exit until it
// tries to return to user space.
func (ps *Procs_t) Kill(h cpu.Hartctx_i, pid int) defs.Err_t {
	p, ok := ps.Lookup(pid)
	if !ok {
		return -defs.ESRCH
	}
	p.lk.Acquire(h)
	if p.pid != pid || p.state == UNUSED {
		p.lk.Release(h)
		return -defs.ESRCH
	}
	p.killed = true
	if p.state == SLEEPING {
		// wake process from sleep().
		p.state = RUNNABLE
	}
	p.lk.Release(h)
	ps.st.Nkill.Inc()
	ps.Cpus.Kick()
	return 0
}
