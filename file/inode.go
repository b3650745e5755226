package file

import "rv6/bio"
import "rv6/defs"
import "rv6/fdops"
import "rv6/fs"
import "rv6/lock"
import "rv6/stat"
import "rv6/ustr"

// the most bytes one write transaction may carry: the inode, the indirect
// block and two bitmap blocks, plus slop for non-aligned writes.
const maxwrite = ((defs.MAXOPBLOCKS - 1 - 1 - 2) / 2) * bio.BSIZE

type inodefile_t struct {
	fs  *fs.Fs_t
	ipr *fs.Iref_t
	// the file offset. protected by the inode lock
	off int
}

func (f *inodefile_t) Close(k lock.Kctx_i) defs.Err_t {
	tx := f.fs.Begin(k)
	f.ipr.Put(k)
	tx.End(k)
	return 0
}

func (f *inodefile_t) Fstat(k lock.Kctx_i, st *stat.Stat_t) defs.Err_t {
	ip := f.ipr.I()
	ip.Ilock(k)
	ip.Stati(st)
	ip.Iunlock(k)
	return 0
}

func (f *inodefile_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	ip := f.ipr.I()
	ip.Ilock(k)
	n, err := ip.Readi(k, dst, f.off)
	f.off += n
	ip.Iunlock(k)
	return n, err
}

// writes in chunks of at most maxwrite bytes so that no transaction
// exceeds the log.
func (f *inodefile_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	tot := 0
	for src.Remain() != 0 {
		lim := &limitio_t{Userio_i: src, left: maxwrite}
		want := lim.Remain()
		tx := f.fs.Begin(k)
		ip := f.ipr.I()
		ip.Ilock(k)
		n, err := ip.Writei(k, lim, f.off)
		f.off += n
		ip.Iunlock(k)
		tx.End(k)
		tot += n
		if err != 0 {
			if tot != 0 {
				return tot, 0
			}
			return 0, err
		}
		if n != want {
			// disk full
			if tot == 0 {
				return 0, -defs.ENOSPC
			}
			break
		}
	}
	return tot, 0
}

// caps a Userio_i at left bytes.
type limitio_t struct {
	fdops.Userio_i
	left int
}

func (l *limitio_t) Remain() int {
	r := l.Userio_i.Remain()
	if r > l.left {
		return l.left
	}
	return r
}

func (l *limitio_t) Uioread(dst []uint8) (int, defs.Err_t) {
	if len(dst) > l.left {
		dst = dst[:l.left]
	}
	n, err := l.Userio_i.Uioread(dst)
	l.left -= n
	return n, err
}

func (l *limitio_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	if len(src) > l.left {
		src = src[:l.left]
	}
	n, err := l.Userio_i.Uiowrite(src)
	l.left -= n
	return n, err
}

// a device node; reads and writes go through the device switch.
type devfile_t struct {
	inodefile_t
	major int
	ft    *Ftable_t
}

func (f *devfile_t) dev() fdops.Devsw_i {
	if f.major < 0 || f.major >= defs.NDEV {
		return nil
	}
	return f.ft.Devsw[f.major]
}

func (f *devfile_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	d := f.dev()
	if d == nil {
		return 0, -defs.ENODEV
	}
	return d.Read(k, dst)
}

func (f *devfile_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	d := f.dev()
	if d == nil {
		return 0, -defs.ENODEV
	}
	return d.Write(k, src)
}

// opens path relative to cwd according to omode and returns a new
// descriptor for it.
func (ft *Ftable_t) Open(k lock.Kctx_i, cwd *fs.Iref_t, path ustr.Ustr,
	omode defs.Fdopt_t) (*Fd_t, defs.Err_t) {
	tx := ft.fs.Begin(k)
	defer tx.End(k)
	ipr, err := ft.fs.Open(k, cwd, path, omode)
	if err != 0 {
		return nil, err
	}
	ip := ipr.I()
	var fops fdops.Fdops_i
	if ip.Type == defs.T_DEVICE {
		fops = &devfile_t{inodefile_t: inodefile_t{fs: ft.fs, ipr: ipr},
			major: int(ip.Major), ft: ft}
	} else {
		fops = &inodefile_t{fs: ft.fs, ipr: ipr}
	}
	fd, err := ft.Alloc(k, fops, perms(omode))
	if err != 0 {
		ipr.Unlockput(k)
		return nil, err
	}
	ip.Iunlock(k)
	return fd, 0
}
