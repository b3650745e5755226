package file

import "rv6/circbuf"
import "rv6/defs"
import "rv6/fdops"
import "rv6/limits"
import "rv6/lock"
import "rv6/stat"

const PIPESIZE = 512

type Pipe_t struct {
	sync lock.Spinlock_t
	cb   circbuf.Circbuf_t
	// readers sleep on rwc, writers on wwc
	rwc       lock.Waitchannel_t
	wwc       lock.Waitchannel_t
	readopen  bool
	writeopen bool
	ft        *Ftable_t
}

type pipefd_t struct {
	p      *Pipe_t
	writer bool
}

// creates a pipe and returns its read and write ends.
func (ft *Ftable_t) Pipe(k lock.Kctx_i) (*Fd_t, *Fd_t, defs.Err_t) {
	if !limits.Syslimit.Pipes.Take() {
		return nil, nil, -defs.ENOMEM
	}
	p := &Pipe_t{readopen: true, writeopen: true, ft: ft}
	p.sync.Init("pipe")
	p.cb.Cb_init(PIPESIZE, ft.phys)
	if err := p.cb.Cb_ensure(k); err != 0 {
		limits.Syslimit.Pipes.Give()
		return nil, nil, err
	}
	rfd, err := ft.Alloc(k, &pipefd_t{p: p}, FD_READ)
	if err != 0 {
		p.cb.Cb_release(k)
		limits.Syslimit.Pipes.Give()
		return nil, nil, err
	}
	wfd, err := ft.Alloc(k, &pipefd_t{p: p, writer: true}, FD_WRITE)
	if err != 0 {
		// closing the read end alone leaves the pipe half-open
		p.writeopen = false
		rfd.Close(k)
		return nil, nil, err
	}
	return rfd, wfd, 0
}

func (pf *pipefd_t) Close(k lock.Kctx_i) defs.Err_t {
	p := pf.p
	p.sync.Acquire(k)
	if pf.writer {
		p.writeopen = false
		p.rwc.Wakeup(k)
	} else {
		p.readopen = false
		p.wwc.Wakeup(k)
	}
	gone := !p.readopen && !p.writeopen
	p.sync.Release(k)
	if gone {
		p.cb.Cb_release(k)
		limits.Syslimit.Pipes.Give()
	}
	return 0
}

func (pf *pipefd_t) Fstat(k lock.Kctx_i, st *stat.Stat_t) defs.Err_t {
	p := pf.p
	p.sync.Acquire(k)
	st.Wsize(uint(p.cb.Used()))
	p.sync.Release(k)
	return 0
}

// blocks until data is available or every writer is gone. returns 0 at
// EOF.
func (pf *pipefd_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	if pf.writer {
		return 0, -defs.EBADF
	}
	p := pf.p
	p.sync.Acquire(k)
	for p.cb.Empty() && p.writeopen {
		if k.Killed() {
			p.sync.Release(k)
			return 0, -defs.EINTR
		}
		p.rwc.Sleep(&p.sync, k)
	}
	n, err := p.cb.Copyout_n(k, dst, dst.Remain())
	p.wwc.Wakeup(k)
	p.sync.Release(k)
	return n, err
}

// blocks while the pipe is full. fails with EPIPE once no reader remains.
func (pf *pipefd_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	if !pf.writer {
		return 0, -defs.EBADF
	}
	p := pf.p
	tot := 0
	p.sync.Acquire(k)
	for src.Remain() != 0 {
		if !p.readopen {
			p.sync.Release(k)
			return tot, -defs.EPIPE
		}
		if k.Killed() {
			p.sync.Release(k)
			return tot, -defs.EINTR
		}
		if p.cb.Full() {
			p.rwc.Wakeup(k)
			p.wwc.Sleep(&p.sync, k)
			continue
		}
		n, err := p.cb.Copyin(k, src)
		tot += n
		if err != 0 {
			p.sync.Release(k)
			return tot, err
		}
	}
	p.rwc.Wakeup(k)
	p.sync.Release(k)
	return tot, 0
}
