package umode

import "fmt"

import "rv6/defs"
import "rv6/proc"
import "rv6/riscv"
import "rv6/stat"
import "rv6/util"

// the scratch area every program allocates at startup: argument strings
// for system calls in the first half, a bounce buffer for I/O in the rest.
const (
	SCRATCHSZ = 4 * riscv.PGSIZE
	ARGSZ     = 2 * riscv.PGSIZE
	IOSZ      = SCRATCHSZ - ARGSZ
)

// a running user program's view of its process: registers, user memory
// and the system call stubs.
type Uctx_t struct {
	p  *proc.Proc_t
	um *Umode_t
	// the exec generation the program belongs to
	gen     int
	scratch uint64
}

// the user registers.
func (u *Uctx_t) Tf() *riscv.Trapframe_t {
	return u.p.Tf
}

// an instruction boundary: takes any pending interrupt. programs that
// compute for a long time without system calls or memory accesses must call
// this now and then.
func (u *Uctx_t) Poll() {
	u.um.trap.Userpoll(u.p)
}

func (u *Uctx_t) setup() {
	sc := u.Sbrk(SCRATCHSZ)
	if sc < 0 {
		u.Exit(-1)
	}
	u.scratch = uint64(sc)
}

// reads argc pointers at argvp and the strings they point to.
func (u *Uctx_t) args(argc int, argvp uint64) []string {
	argv := make([]string, 0, argc)
	for i := 0; i < argc; i++ {
		a := u.Load64(argvp + uint64(i)*8)
		argv = append(argv, u.Loadstr(a))
	}
	return argv
}

// the page bytes at va and after, checked the way the MMU checks a load or
// store. a bad address is a page fault, which kills the process.
func (u *Uctx_t) access(va uint64, write bool) []uint8 {
	u.Poll()
	need, cause := riscv.PTE_R, riscv.EXC_LPAGEFLT
	if write {
		need, cause = riscv.PTE_W, riscv.EXC_SPAGEFLT
	}
	pa, ok := u.p.Um.Pagetable().Translate(va, need)
	if !ok {
		u.um.trap.Usertrap(u.p, cause, va)
		panic("page fault survived")
	}
	return u.um.phys.Dmap8(pa)
}

// loads len(dst) bytes from va.
func (u *Uctx_t) Copyin(dst []uint8, va uint64) {
	for len(dst) > 0 {
		c := copy(dst, u.access(va, false))
		dst = dst[c:]
		va += uint64(c)
	}
}

// stores src at va.
func (u *Uctx_t) Copyout(va uint64, src []uint8) {
	for len(src) > 0 {
		c := copy(u.access(va, true), src)
		src = src[c:]
		va += uint64(c)
	}
}

func (u *Uctx_t) Load8(va uint64) uint8 {
	return u.access(va, false)[0]
}

func (u *Uctx_t) Store8(va uint64, v uint8) {
	u.access(va, true)[0] = v
}

func (u *Uctx_t) Load64(va uint64) uint64 {
	var b [8]uint8
	u.Copyin(b[:], va)
	return uint64(util.Readn(b[:], 8, 0))
}

func (u *Uctx_t) Store64(va uint64, v uint64) {
	var b [8]uint8
	util.Writen(b[:], 8, 0, int(v))
	u.Copyout(va, b[:])
}

// the NUL-terminated string at va.
func (u *Uctx_t) Loadstr(va uint64) string {
	var s []uint8
	for {
		c := u.Load8(va)
		if c == 0 {
			return string(s)
		}
		s = append(s, c)
		va++
	}
}

// copies ss into the argument area as NUL-terminated strings and returns
// their addresses. if argvfrom is not negative, the last address returned
// is that of a NULL-terminated array of the strings from ss[argvfrom] on.
// ok is false if they don't fit.
func (u *Uctx_t) putstrs(ss []string, argvfrom int) ([]uint64, bool) {
	va := u.scratch
	end := u.scratch + ARGSZ
	var r []uint64
	for _, s := range ss {
		if va+uint64(len(s))+1 > end {
			return nil, false
		}
		b := append([]uint8(s), 0)
		u.Copyout(va, b)
		r = append(r, va)
		va += uint64(len(b))
	}
	if argvfrom >= 0 {
		va = uint64(util.Roundup(int(va), 8))
		args := r[argvfrom:]
		if va+uint64(len(args)+1)*8 > end {
			return nil, false
		}
		argv := va
		for _, a := range args {
			u.Store64(va, a)
			va += 8
		}
		u.Store64(va, 0)
		r = append(r, argv)
	}
	return r, true
}

// traps into the kernel with system call n. a successful exec never
// returns here: the program unwinds and the new image starts.
func (u *Uctx_t) syscall(n int, args ...uint64) int {
	p := u.p
	tf := p.Tf
	tf.A7 = uint64(n)
	for i, a := range args {
		tf.Setarg(i, a)
	}
	u.um.trap.Usertrap(p, riscv.EXC_ECALL_U, 0)
	if p.Execgen != u.gen {
		panic(execunwind_t{})
	}
	return int(int64(tf.A0))
}

// creates a child process that runs child and exits with its result.
// returns the child's pid, or -1.
func (u *Uctx_t) Fork(child func(u *Uctx_t) int) int {
	tf := u.p.Tf
	tok := u.um.newcont(&cont_t{u: *u, child: child})
	tf.T0 = tok
	pid := u.syscall(defs.SYS_FORK)
	tf.T0 = 0
	if pid < 0 {
		u.um.conts.Del(tok)
	}
	return pid
}

func (u *Uctx_t) Exit(status int) {
	u.syscall(defs.SYS_EXIT, uint64(status))
	panic("exit returned")
}

// waits for a child to exit and stores its exit status in status unless
// it is nil.
func (u *Uctx_t) Wait(status *int) int {
	addr := uint64(0)
	if status != nil {
		addr = u.scratch + ARGSZ
	}
	pid := u.syscall(defs.SYS_WAIT, addr)
	if pid >= 0 && status != nil {
		var b [4]uint8
		u.Copyin(b[:], addr)
		*status = int(int32(util.Readn(b[:], 4, 0)))
	}
	return pid
}

func (u *Uctx_t) Pipe(fds *[2]int) int {
	addr := u.scratch + ARGSZ
	r := u.syscall(defs.SYS_PIPE, addr)
	if r == 0 {
		var b [8]uint8
		u.Copyin(b[:], addr)
		fds[0] = util.Readn(b[:], 4, 0)
		fds[1] = util.Readn(b[:], 4, 4)
	}
	return r
}

// reads at most len(buf) bytes, bounced through user memory.
func (u *Uctx_t) Read(fd int, buf []uint8) int {
	n := util.Min(len(buf), IOSZ)
	io := u.scratch + ARGSZ
	r := u.syscall(defs.SYS_READ, uint64(fd), io, uint64(n))
	if r > 0 {
		u.Copyin(buf[:r], io)
	}
	return r
}

func (u *Uctx_t) Write(fd int, buf []uint8) int {
	io := u.scratch + ARGSZ
	tot := 0
	for len(buf) > 0 || tot == 0 {
		n := util.Min(len(buf), IOSZ)
		u.Copyout(io, buf[:n])
		r := u.syscall(defs.SYS_WRITE, uint64(fd), io, uint64(n))
		if r < 0 {
			if tot == 0 {
				return r
			}
			return tot
		}
		tot += r
		buf = buf[r:]
		if r < n || n == 0 {
			break
		}
	}
	return tot
}

// read and write with a user buffer the program manages itself.
func (u *Uctx_t) Readva(fd int, va uint64, n int) int {
	return u.syscall(defs.SYS_READ, uint64(fd), va, uint64(n))
}

func (u *Uctx_t) Writeva(fd int, va uint64, n int) int {
	return u.syscall(defs.SYS_WRITE, uint64(fd), va, uint64(n))
}

func (u *Uctx_t) Kill(pid int) int {
	return u.syscall(defs.SYS_KILL, uint64(pid))
}

// replaces the program. returns only on failure.
func (u *Uctx_t) Exec(path string, argv []string) int {
	if len(argv) > defs.MAXARG {
		return -1
	}
	a, ok := u.putstrs(append([]string{path}, argv...), 1)
	if !ok {
		return -1
	}
	return u.syscall(defs.SYS_EXEC, a[0], a[len(a)-1])
}

func (u *Uctx_t) Fstat(fd int, st *stat.Stat_t) int {
	addr := u.scratch + ARGSZ
	r := u.syscall(defs.SYS_FSTAT, uint64(fd), addr)
	if r == 0 {
		b := make([]uint8, stat.Statsz)
		u.Copyin(b, addr)
		*st = *stat.Frombytes(b)
	}
	return r
}

func (u *Uctx_t) path(n int, paths ...string) int {
	a, ok := u.putstrs(paths, -1)
	if !ok {
		return -1
	}
	switch len(a) {
	case 1:
		return u.syscall(n, a[0])
	case 2:
		return u.syscall(n, a[0], a[1])
	}
	panic("path args")
}

func (u *Uctx_t) Chdir(path string) int {
	return u.path(defs.SYS_CHDIR, path)
}

func (u *Uctx_t) Dup(fd int) int {
	return u.syscall(defs.SYS_DUP, uint64(fd))
}

func (u *Uctx_t) Getpid() int {
	return u.syscall(defs.SYS_GETPID)
}

// returns the old break, or -1.
func (u *Uctx_t) Sbrk(n int) int {
	return u.syscall(defs.SYS_SBRK, uint64(n))
}

func (u *Uctx_t) Sleep(ticks int) int {
	return u.syscall(defs.SYS_SLEEP, uint64(ticks))
}

func (u *Uctx_t) Uptime() int {
	return u.syscall(defs.SYS_UPTIME)
}

func (u *Uctx_t) Open(path string, omode defs.Fdopt_t) int {
	a, ok := u.putstrs([]string{path}, -1)
	if !ok {
		return -1
	}
	return u.syscall(defs.SYS_OPEN, a[0], uint64(omode))
}

func (u *Uctx_t) Mknod(path string, major, minor int) int {
	a, ok := u.putstrs([]string{path}, -1)
	if !ok {
		return -1
	}
	return u.syscall(defs.SYS_MKNOD, a[0], uint64(major), uint64(minor))
}

func (u *Uctx_t) Unlink(path string) int {
	return u.path(defs.SYS_UNLINK, path)
}

func (u *Uctx_t) Link(oldp, newp string) int {
	return u.path(defs.SYS_LINK, oldp, newp)
}

func (u *Uctx_t) Mkdir(path string) int {
	return u.path(defs.SYS_MKDIR, path)
}

func (u *Uctx_t) Close(fd int) int {
	return u.syscall(defs.SYS_CLOSE, uint64(fd))
}

func (u *Uctx_t) Fprintf(fd int, format string, a ...any) int {
	return u.Write(fd, []uint8(fmt.Sprintf(format, a...)))
}

func (u *Uctx_t) Printf(format string, a ...any) int {
	return u.Fprintf(1, format, a...)
}
