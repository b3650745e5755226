// Package umode runs user programs on the hosted machine. A user program
// is a Go function registered by name; an executable is an ELF image whose
// text holds a stub naming the program. The hart "executes" the stub it
// fetches at epc through the user page table, and everything the program
// does to the kernel goes through system call traps and user memory.
package umode

import "fmt"
import "sort"
import "sync"
import "sync/atomic"

import "rv6/defs"
import "rv6/hashtable"
import "rv6/mem"
import "rv6/proc"
import "rv6/riscv"
import "rv6/trap"

const umode_debug = false

// the text of every program image starts with STUBMAGIC and the program's
// NUL-terminated name.
const STUBMAGIC = "\x7fUPRG"

// a user program's main. the value returned is its exit status.
type Main_t func(u *Uctx_t, argv []string) int

var progs struct {
	sync.Mutex
	m map[string]Main_t
}

// adds a program to the set the machine can run.
func Register(name string, main Main_t) {
	progs.Lock()
	defer progs.Unlock()
	if progs.m == nil {
		progs.m = make(map[string]Main_t)
	}
	if _, ok := progs.m[name]; ok {
		panic("duplicate program " + name)
	}
	progs.m[name] = main
}

func lookup(name string) (Main_t, bool) {
	progs.Lock()
	defer progs.Unlock()
	m, ok := progs.m[name]
	return m, ok
}

// the names of all registered programs, sorted.
func Programs() []string {
	progs.Lock()
	defer progs.Unlock()
	var r []string
	for n := range progs.m {
		r = append(r, n)
	}
	sort.Strings(r)
	return r
}

// the program text for name.
func Stub(name string) []uint8 {
	b := []uint8(STUBMAGIC + name)
	return append(b, 0)
}

// parses program text; ok is false unless b starts with a stub.
func parsestub(b []uint8) (string, bool) {
	if len(b) < len(STUBMAGIC) || string(b[:len(STUBMAGIC)]) != STUBMAGIC {
		return "", false
	}
	b = b[len(STUBMAGIC):]
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), true
		}
	}
	return "", false
}

// a forked child's starting point: the parent's user state and the code
// the child runs.
type cont_t struct {
	u     Uctx_t
	child func(u *Uctx_t) int
}

// unwinds a user program whose process exec'ed a new image.
type execunwind_t struct{}

type Umode_t struct {
	trap  *trap.Trap_t
	phys  *mem.Physmem_t
	conts *hashtable.Hashtable_t
	ncont uint64
}

func MkUmode(tr *trap.Trap_t, phys *mem.Physmem_t) *Umode_t {
	return &Umode_t{trap: tr, phys: phys, conts: hashtable.MkHash(defs.NPROC)}
}

// the number of forked children that have not started yet.
func (um *Umode_t) Pending() int {
	return um.conts.Size()
}

func (um *Umode_t) newcont(c *cont_t) uint64 {
	tok := atomic.AddUint64(&um.ncont, 1)
	um.conts.Set(tok, c)
	return tok
}

// enters user space for p and never returns. installed as the process
// table's Userret.
func (um *Umode_t) Userret(p *proc.Proc_t) {
	um.trap.Usertrapret(p)
	for {
		um.run(p)
	}
}

// runs whatever p's user registers say: a forked child's continuation, or
// the program at epc. returns only if the program exec'ed.
func (um *Umode_t) run(p *proc.Proc_t) {
	defer func() {
		// a retired process unwinds with nothing to recover
		if r := recover(); r != nil {
			if _, ok := r.(execunwind_t); !ok {
				panic(r)
			}
		}
	}()
	tf := p.Tf
	if tok := tf.T0; tok != 0 {
		v, ok := um.conts.Get(tok)
		if !ok {
			panic("no continuation")
		}
		um.conts.Del(tok)
		tf.T0 = 0
		c := v.(*cont_t)
		u := c.u
		u.p = p
		u.gen = p.Execgen
		u.Exit(c.child(&u))
	}
	u := &Uctx_t{p: p, um: um, gen: p.Execgen}
	name, ok := um.fetch(p, tf.Epc)
	if !ok {
		um.trap.Usertrap(p, riscv.EXC_ILLEGAL, tf.Epc)
		panic("illegal instruction survived")
	}
	main, ok := lookup(name)
	if !ok {
		um.trap.Usertrap(p, riscv.EXC_ILLEGAL, tf.Epc)
		panic("illegal instruction survived")
	}
	argv := u.args(int(tf.A0), tf.A1)
	if umode_debug {
		fmt.Printf("%d: run %s %v\n", p.Pid(), name, argv)
	}
	u.setup()
	u.Exit(main(u, argv))
}

// fetches the program stub at va, which must be executable.
func (um *Umode_t) fetch(p *proc.Proc_t, va uint64) (string, bool) {
	pa, ok := p.Um.Pagetable().Translate(va, riscv.PTE_X)
	if !ok {
		return "", false
	}
	pg := um.phys.Dmap8(pa)
	return parsestub(pg)
}
