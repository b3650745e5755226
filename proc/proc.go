// Package proc is the process table and the per-hart scheduler. A process
// is a kernel thread (a cpu.Context_t) plus, for user processes, an address
// space and a trap frame. Procs_t also implements the kernel context that
// the rest of the kernel sleeps and wakes through.
package proc

import "fmt"
import "io"
import "time"
import "unsafe"

import "rv6/accnt"
import "rv6/cpu"
import "rv6/defs"
import "rv6/file"
import "rv6/fs"
import "rv6/hashtable"
import "rv6/limits"
import "rv6/lock"
import "rv6/mem"
import "rv6/riscv"
import "rv6/stats"
import "rv6/vm"

const sched_debug = false

type Procstate_t int

const (
	UNUSED Procstate_t = iota
	USED
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

var statenames = [...]string{
	UNUSED:   "unused",
	USED:     "used",
	SLEEPING: "sleep ",
	RUNNABLE: "runble",
	RUNNING:  "run   ",
	ZOMBIE:   "zombie",
}

func (s Procstate_t) String() string {
	return statenames[s]
}

type Proc_t struct {
	// protects state, wchan, killed, xstate and pid
	lk     lock.Spinlock_t
	state  Procstate_t
	wchan  *lock.Waitchannel_t
	killed bool
	xstate int
	pid    int

	// protected by the table's wait lock
	parent lock.Remotelock_t[*Proc_t]

	// the rest is private to the process
	idx     int
	Kstack  uint64
	Tfpa    mem.Pa_t
	Tf      *riscv.Trapframe_t
	Um      *vm.Usermem_t
	Context cpu.Context_t
	Ofile   [defs.NOFILE]*file.Fd_t
	Cwd     *fs.Iref_t
	Name    string
	// this proc's times and those of its reaped children
	Atime  accnt.Accnt_t
	Catime accnt.Accnt_t
	// when p last returned to user space, for Atime
	Uentry int
	// wait() sleeps here
	childwc lock.Waitchannel_t
	// a kernel task runs ktask instead of returning to user space
	ktask func(p *Proc_t)
	// hosted user mode state
	User any
	// bumped by every successful exec
	Execgen int
	procs   *Procs_t
}

type pstats_t struct {
	Nswtch stats.Counter_t
	Nfork  stats.Counter_t
	Nexec  stats.Counter_t
	Nexit  stats.Counter_t
	Nkill  stats.Counter_t
}

type Procs_t struct {
	procs   [defs.NPROC]Proc_t
	pidlock lock.Spinlock_t
	nextpid int
	// helps ensure that wakeups of wait()ing parents are not lost. must
	// be acquired before any p.lk.
	waitlock lock.Spinlock_t
	// pid -> *Proc_t, for kill
	ptable   *hashtable.Hashtable_t
	initproc *Proc_t
	hartks   []*Hartk_t
	Cpus     cpu.Cpus_t
	phys     *mem.Physmem_t
	tramp    mem.Pa_t
	// satp of the kernel page table, for trap frames
	Kernel_satp uint64
	Fs          *fs.Fs_t
	Ftable      *file.Ftable_t
	// enters user mode for p; never returns
	Userret func(p *Proc_t)
	// called with whatever a process's kernel thread panicked with
	Oops func(v any)
	// how long an idle hart waits before rescanning
	Idle time.Duration
	st   pstats_t
}

// the process table. maps a kernel stack for every slot into kpt.
func MkProcs(cpus cpu.Cpus_t, phys *mem.Physmem_t, kpt *vm.Pagetable_t,
	tramp mem.Pa_t, fs *fs.Fs_t, ft *file.Ftable_t) *Procs_t {
	ps := &Procs_t{Cpus: cpus, phys: phys, tramp: tramp, Fs: fs, Ftable: ft}
	ps.Kernel_satp = kpt.Satp()
	ps.pidlock.Init("nextpid")
	ps.waitlock.Init("wait_lock")
	ps.nextpid = 1
	ps.Idle = 10 * time.Millisecond
	ps.ptable = hashtable.MkHash(defs.NPROC)
	for _, c := range cpus {
		ps.hartks = append(ps.hartks, &Hartk_t{c: c, procs: ps})
	}
	h := cpus[0]
	for i := range ps.procs {
		p := &ps.procs[i]
		p.lk.Init("proc")
		p.parent.Init(&ps.waitlock, nil)
		p.idx = i
		p.procs = ps
		pa, ok := phys.Alloc(h)
		if !ok {
			panic("proc stacks")
		}
		p.Kstack = riscv.KSTACK(i)
		kpt.Kvmmap(h, p.Kstack, pa, riscv.PGSIZE, riscv.PTE_R|riscv.PTE_W)
	}
	return ps
}

func (ps *Procs_t) Stats() string {
	return "proc" + stats.Stats2String(&ps.st)
}

// the kernel context of hart c when no process runs on it: the scheduler
// loop and interrupt handlers.
func (ps *Procs_t) Hartk(c *cpu.Cpu_t) *Hartk_t {
	return ps.hartks[c.Id]
}

// the process running on c, or nil.
func Myproc(c *cpu.Cpu_t) *Proc_t {
	c.Push_off()
	p, _ := c.Proc.(*Proc_t)
	c.Pop_off()
	return p
}

func (ps *Procs_t) Initproc() *Proc_t {
	return ps.initproc
}

// looks up a live process by pid.
func (ps *Procs_t) Lookup(pid int) (*Proc_t, bool) {
	v, ok := ps.ptable.Get(pid)
	if !ok {
		return nil, false
	}
	return v.(*Proc_t), true
}

func (ps *Procs_t) allocpid(h cpu.Hartctx_i) int {
	ps.pidlock.Acquire(h)
	pid := ps.nextpid
	ps.nextpid++
	ps.pidlock.Release(h)
	return pid
}

// finds an UNUSED slot and prepares it to run in the kernel: a trap frame
// page and a fresh context that starts at forkret on the kernel stack.
// returns with p.lk held.
func (ps *Procs_t) allocproc(h cpu.Hartctx_i) (*Proc_t, defs.Err_t) {
	var p *Proc_t
	for i := range ps.procs {
		pp := &ps.procs[i]
		pp.lk.Acquire(h)
		if pp.state == UNUSED {
			p = pp
			break
		}
		pp.lk.Release(h)
	}
	if p == nil {
		return nil, -defs.EAGAIN
	}
	// the pid is published only once nothing else can fail.
	tfpa, ok := ps.phys.Zalloc(h)
	if !ok {
		p.lk.Release(h)
		return nil, -defs.ENOMEM
	}
	p.pid = ps.allocpid(h)
	p.state = USED
	p.Tfpa = tfpa
	p.Tf = (*riscv.Trapframe_t)(unsafe.Pointer(&ps.phys.Dmap8(tfpa)[0]))
	p.Context.Init(p.Kstack+riscv.PGSIZE, p.forkret)
	ps.ptable.Set(p.pid, p)
	return p, 0
}

// frees a proc structure and the data hanging from it, including user
// pages. p.lk must be held.
func (ps *Procs_t) freeproc(h cpu.Hartctx_i, p *Proc_t) {
	if p.Tfpa != 0 {
		ps.phys.Free(h, p.Tfpa)
	}
	p.Tfpa = 0
	p.Tf = nil
	if p.Um != nil {
		p.Um.Free(h)
	}
	p.Um = nil
	p.Context.Retire()
	if p.pid != 0 {
		ps.ptable.Del(p.pid)
	}
	if p.ktask != nil {
		limits.Syslimit.Ktasks.Give()
	}
	p.ktask = nil
	p.User = nil
	p.Execgen = 0
	p.pid = 0
	*p.parent.Get_unchecked() = nil
	p.Name = ""
	p.wchan = nil
	p.killed = false
	p.xstate = 0
	p.Atime.Reset()
	p.Catime.Reset()
	p.state = UNUSED
}

// the first thing a new process runs, via the scheduler's swtch.
func (p *Proc_t) forkret() {
	ps := p.procs
	defer func() {
		// a retired context unwinds with a nil recover
		if r := recover(); r != nil {
			if ps.Oops == nil {
				panic(r)
			}
			ps.Oops(r)
		}
	}()
	// still holding p.lk from the scheduler
	p.lk.Release(p)
	// the file system must be mounted in the context of a regular
	// process because it sleeps.
	ps.Fs.Init(p)
	if p.Cwd == nil {
		p.Cwd = ps.Fs.Root(p)
	}
	if f := p.ktask; f != nil {
		f(p)
		p.Exit(0)
	}
	ps.Userret(p)
	panic("userret returned")
}

// Proc_t is the kernel context of code running on behalf of p.

func (p *Proc_t) Cpu() *cpu.Cpu_t {
	return p.Context.Cpu()
}

func (p *Proc_t) Pid() int {
	return p.pid
}

func (p *Proc_t) Killed() bool {
	p.lk.Acquire(p)
	k := p.killed
	p.lk.Release(p)
	return k
}

func (p *Proc_t) Setkilled() {
	p.lk.Acquire(p)
	p.killed = true
	p.lk.Release(p)
}

func (p *Proc_t) State(h cpu.Hartctx_i) Procstate_t {
	p.lk.Acquire(h)
	s := p.state
	p.lk.Release(h)
	return s
}

func (p *Proc_t) Procs() *Procs_t {
	return p.procs
}

// the lowest free descriptor slot, which is then taken by f.
func (p *Proc_t) Fdalloc(f *file.Fd_t) (int, defs.Err_t) {
	for i := range p.Ofile {
		if p.Ofile[i] == nil {
			p.Ofile[i] = f
			return i, 0
		}
	}
	return -1, -defs.EMFILE
}

func (p *Proc_t) Getfd(fdn int) (*file.Fd_t, defs.Err_t) {
	if fdn < 0 || fdn >= defs.NOFILE || p.Ofile[fdn] == nil {
		return nil, -defs.EBADF
	}
	return p.Ofile[fdn], 0
}

// prints the process list. no locks, to avoid wedging a stuck machine
// further.
func (ps *Procs_t) Procdump(w io.Writer) {
	fmt.Fprintf(w, "\n")
	for i := range ps.procs {
		p := &ps.procs[i]
		if p.state == UNUSED {
			continue
		}
		fmt.Fprintf(w, "%d %s %s %v\n", p.pid, p.state, p.Name, &p.Atime)
	}
}

// the context of a hart running its scheduler or an interrupt handler.
// such code runs for no process and cannot sleep.
type Hartk_t struct {
	c     *cpu.Cpu_t
	procs *Procs_t
}

func (hk *Hartk_t) Cpu() *cpu.Cpu_t {
	return hk.c
}

func (hk *Hartk_t) Sleep(wc *lock.Waitchannel_t, lk *lock.Spinlock_t) {
	panic("sleep without process")
}

func (hk *Hartk_t) Wakeup(wc *lock.Waitchannel_t) {
	hk.procs.wakeup(hk, nil, wc)
}

func (hk *Hartk_t) Killed() bool {
	return false
}

func (hk *Hartk_t) Pid() int {
	return 0
}
