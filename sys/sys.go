// Package sys is the system call layer: it fetches arguments from the trap
// frame and user memory, runs the call and stores the result in a0.
package sys

import "fmt"

import "rv6/defs"
import "rv6/file"
import "rv6/proc"
import "rv6/stat"
import "rv6/stats"
import "rv6/trap"
import "rv6/ustr"

const sys_debug = false

type Sys_t struct {
	procs *proc.Procs_t
	ft    *file.Ftable_t
	trap  *trap.Trap_t
	calls [defs.SYS_NSYS]stats.Counter_t
}

func MkSys(procs *proc.Procs_t, ft *file.Ftable_t, tr *trap.Trap_t) *Sys_t {
	return &Sys_t{procs: procs, ft: ft, trap: tr}
}

// per-call counts.
func (s *Sys_t) Stats() string {
	r := "sys:\n"
	for i := range s.calls {
		if n := s.calls[i].Get(); n != 0 {
			r += fmt.Sprintf("\t#%s: %v\n", defs.Sysnames[i], n)
		}
	}
	return r
}

// runs the system call in p's a7 and leaves the result in a0: the call's
// value, or -1 if it failed.
func (s *Sys_t) Syscall(p *proc.Proc_t) {
	tf := p.Tf
	sysno := int(tf.A7)
	a0 := tf.A0
	a1 := tf.A1
	a2 := tf.A2

	ret := 0
	err := -defs.ENOSYS
	if sysno > 0 && sysno < defs.SYS_NSYS {
		s.calls[sysno].Inc()
	}
	switch sysno {
	case defs.SYS_FORK:
		ret, err = s.sys_fork(p)
	case defs.SYS_EXIT:
		s.sys_exit(p, int(int32(a0)))
	case defs.SYS_WAIT:
		ret, err = s.sys_wait(p, a0)
	case defs.SYS_PIPE:
		ret, err = s.sys_pipe(p, a0)
	case defs.SYS_READ:
		ret, err = s.sys_read(p, int(a0), a1, int(a2))
	case defs.SYS_KILL:
		ret, err = s.sys_kill(p, int(a0))
	case defs.SYS_EXEC:
		ret, err = s.sys_exec(p, a0, a1)
	case defs.SYS_FSTAT:
		ret, err = s.sys_fstat(p, int(a0), a1)
	case defs.SYS_CHDIR:
		ret, err = s.sys_chdir(p, a0)
	case defs.SYS_DUP:
		ret, err = s.sys_dup(p, int(a0))
	case defs.SYS_GETPID:
		ret, err = p.Pid(), 0
	case defs.SYS_SBRK:
		ret, err = s.sys_sbrk(p, int(int32(a0)))
	case defs.SYS_SLEEP:
		ret, err = s.sys_sleep(p, int(int32(a0)))
	case defs.SYS_UPTIME:
		ret, err = s.trap.Ticks(p), 0
	case defs.SYS_OPEN:
		ret, err = s.sys_open(p, a0, defs.Fdopt_t(a1))
	case defs.SYS_WRITE:
		ret, err = s.sys_write(p, int(a0), a1, int(a2))
	case defs.SYS_MKNOD:
		ret, err = s.sys_mknod(p, a0, uint16(a1), uint16(a2))
	case defs.SYS_UNLINK:
		ret, err = s.sys_unlink(p, a0)
	case defs.SYS_LINK:
		ret, err = s.sys_link(p, a0, a1)
	case defs.SYS_MKDIR:
		ret, err = s.sys_mkdir(p, a0)
	case defs.SYS_CLOSE:
		ret, err = s.sys_close(p, int(a0))
	default:
		fmt.Printf("%d %s: unknown sys call %d\n", p.Pid(), p.Name, sysno)
	}
	if err != 0 {
		if sys_debug {
			fmt.Printf("%d: syscall %d failed %d\n", p.Pid(), sysno, err)
		}
		tf.A0 = ^uint64(0)
		return
	}
	tf.A0 = uint64(ret)
}

// fetches a NUL-terminated path from user memory.
func userpath(p *proc.Proc_t, va uint64) (ustr.Ustr, defs.Err_t) {
	b, err := p.Um.Copyinstr(va, defs.MAXPATH)
	if err != 0 {
		return nil, err
	}
	return ustr.Ustr(b), 0
}

// fetches the NULL-terminated argv array at va and its strings.
func userargs(p *proc.Proc_t, va uint64) ([]ustr.Ustr, defs.Err_t) {
	var argv []ustr.Ustr
	for i := 0; ; i++ {
		if i > defs.MAXARG {
			return nil, -defs.E2BIG
		}
		uarg, err := p.Um.Userreadn(va+uint64(i)*8, 8)
		if err != 0 {
			return nil, err
		}
		if uarg == 0 {
			return argv, 0
		}
		arg, err := userpath(p, uint64(uarg))
		if err != 0 {
			return nil, err
		}
		argv = append(argv, arg)
	}
}

func (s *Sys_t) sys_fork(p *proc.Proc_t) (int, defs.Err_t) {
	return p.Fork()
}

func (s *Sys_t) sys_exit(p *proc.Proc_t, status int) {
	p.Exit(status)
}

func (s *Sys_t) sys_wait(p *proc.Proc_t, addr uint64) (int, defs.Err_t) {
	return p.Wait(addr)
}

func (s *Sys_t) sys_kill(p *proc.Proc_t, pid int) (int, defs.Err_t) {
	return 0, s.procs.Kill(p, pid)
}

func (s *Sys_t) sys_sbrk(p *proc.Proc_t, n int) (int, defs.Err_t) {
	old, err := p.Growproc(n)
	return int(old), err
}

func (s *Sys_t) sys_sleep(p *proc.Proc_t, n int) (int, defs.Err_t) {
	if n < 0 {
		n = 0
	}
	return 0, s.trap.Sleepticks(p, n)
}

func (s *Sys_t) sys_exec(p *proc.Proc_t, pathn, argvn uint64) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	argv, err := userargs(p, argvn)
	if err != 0 {
		return 0, err
	}
	return p.Exec(path, argv)
}

func (s *Sys_t) sys_read(p *proc.Proc_t, fdn int, bufp uint64, sz int) (int, defs.Err_t) {
	fd, err := p.Getfd(fdn)
	if err != 0 {
		return 0, err
	}
	if sz < 0 {
		return 0, -defs.EINVAL
	}
	return fd.Read(p, p.Um.Mkuserbuf(bufp, sz))
}

func (s *Sys_t) sys_write(p *proc.Proc_t, fdn int, bufp uint64, sz int) (int, defs.Err_t) {
	fd, err := p.Getfd(fdn)
	if err != 0 {
		return 0, err
	}
	if sz < 0 {
		return 0, -defs.EINVAL
	}
	return fd.Write(p, p.Um.Mkuserbuf(bufp, sz))
}

func (s *Sys_t) sys_close(p *proc.Proc_t, fdn int) (int, defs.Err_t) {
	fd, err := p.Getfd(fdn)
	if err != 0 {
		return 0, err
	}
	p.Ofile[fdn] = nil
	return 0, fd.Close(p)
}

func (s *Sys_t) sys_dup(p *proc.Proc_t, fdn int) (int, defs.Err_t) {
	fd, err := p.Getfd(fdn)
	if err != 0 {
		return 0, err
	}
	nfd := file.Copyfd(p, fd)
	n, err := p.Fdalloc(nfd)
	if err != 0 {
		nfd.Close(p)
		return 0, err
	}
	return n, 0
}

func (s *Sys_t) sys_fstat(p *proc.Proc_t, fdn int, statn uint64) (int, defs.Err_t) {
	fd, err := p.Getfd(fdn)
	if err != 0 {
		return 0, err
	}
	st := &stat.Stat_t{}
	if err := fd.Fstat(p, st); err != 0 {
		return 0, err
	}
	return 0, p.Um.Copyout(statn, st.Bytes())
}

// fds is a user pointer to an array of two 32-bit descriptors.
func (s *Sys_t) sys_pipe(p *proc.Proc_t, fds uint64) (int, defs.Err_t) {
	rf, wf, err := s.ft.Pipe(p)
	if err != 0 {
		return 0, err
	}
	fd0, err := p.Fdalloc(rf)
	if err != 0 {
		rf.Close(p)
		wf.Close(p)
		return 0, err
	}
	fd1, err := p.Fdalloc(wf)
	if err != 0 {
		p.Ofile[fd0] = nil
		rf.Close(p)
		wf.Close(p)
		return 0, err
	}
	if err := p.Um.Userwriten(fds, 4, fd0); err == 0 {
		err = p.Um.Userwriten(fds+4, 4, fd1)
	}
	if err != 0 {
		p.Ofile[fd0] = nil
		p.Ofile[fd1] = nil
		rf.Close(p)
		wf.Close(p)
		return 0, err
	}
	return 0, 0
}

func (s *Sys_t) sys_open(p *proc.Proc_t, pathn uint64, omode defs.Fdopt_t) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	fd, err := s.ft.Open(p, p.Cwd, path, omode)
	if err != 0 {
		return 0, err
	}
	n, err := p.Fdalloc(fd)
	if err != 0 {
		fd.Close(p)
		return 0, err
	}
	return n, 0
}

func (s *Sys_t) sys_mknod(p *proc.Proc_t, pathn uint64, major, minor uint16) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	fs := s.ft.Fs()
	tx := fs.Begin(p)
	err = fs.Mknod(p, p.Cwd, path, major, minor)
	tx.End(p)
	return 0, err
}

func (s *Sys_t) sys_mkdir(p *proc.Proc_t, pathn uint64) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	fs := s.ft.Fs()
	tx := fs.Begin(p)
	err = fs.Mkdir(p, p.Cwd, path)
	tx.End(p)
	return 0, err
}

func (s *Sys_t) sys_unlink(p *proc.Proc_t, pathn uint64) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	fs := s.ft.Fs()
	tx := fs.Begin(p)
	err = fs.Unlink(p, p.Cwd, path)
	tx.End(p)
	return 0, err
}

func (s *Sys_t) sys_link(p *proc.Proc_t, oldn, newn uint64) (int, defs.Err_t) {
	oldp, err := userpath(p, oldn)
	if err != 0 {
		return 0, err
	}
	newp, err := userpath(p, newn)
	if err != 0 {
		return 0, err
	}
	fs := s.ft.Fs()
	tx := fs.Begin(p)
	err = fs.Link(p, p.Cwd, oldp, newp)
	tx.End(p)
	return 0, err
}

func (s *Sys_t) sys_chdir(p *proc.Proc_t, pathn uint64) (int, defs.Err_t) {
	path, err := userpath(p, pathn)
	if err != 0 {
		return 0, err
	}
	fs := s.ft.Fs()
	tx := fs.Begin(p)
	ipr, err := fs.Chdir(p, p.Cwd, path)
	if err != 0 {
		tx.End(p)
		return 0, err
	}
	p.Cwd.Put(p)
	p.Cwd = ipr
	tx.End(p)
	return 0, 0
}
