// Package file is the open-file layer: the system-wide file table, the
// per-process descriptors that point into it, and the objects behind them
// (inodes, devices and pipes).
package file

import "rv6/arena"
import "rv6/defs"
import "rv6/fdops"
import "rv6/fs"
import "rv6/lock"
import "rv6/mem"
import "rv6/stat"

const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

// an entry of the file table
type File_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// the last reference is gone; close the underlying object. closing may do
// disk I/O so it runs without the table lock.
func (f *File_t) Finalize(k lock.Kctx_i, g arena.Guard_i) {
	fops := f.Fops
	f.Fops = nil
	f.Perms = 0
	if fops == nil {
		return
	}
	g.Reacquire_after(k, func() {
		fops.Close(k)
	})
}

type Ftable_t struct {
	files *arena.Arrayarena_t[File_t]
	fs    *fs.Fs_t
	phys  mem.Page_i
	// device switch, indexed by major number
	Devsw [defs.NDEV]fdops.Devsw_i
}

func MkFtable(fs *fs.Fs_t, phys mem.Page_i) *Ftable_t {
	ft := &Ftable_t{fs: fs, phys: phys}
	ft.files = arena.MkArrayarena[File_t]("ftable", defs.NFILE)
	return ft
}

func (ft *Ftable_t) Fs() *fs.Fs_t {
	return ft.fs
}

// the number of open files system-wide.
func (ft *Ftable_t) Nopen(k lock.Kctx_i) int {
	return ft.files.Nused(k)
}

// a descriptor: one counted reference to a file table entry.
type Fd_t struct {
	rc *arena.Rc_t[File_t]
}

// installs a new open file. fails with ENFILE when the table is full.
func (ft *Ftable_t) Alloc(k lock.Kctx_i, fops fdops.Fdops_i, perms int) (*Fd_t, defs.Err_t) {
	rc, ok := ft.files.Alloc(k, func(f *File_t) {
		f.Fops = fops
		f.Perms = perms
	})
	if !ok {
		return nil, -defs.ENFILE
	}
	return &Fd_t{rc: rc}, 0
}

func (fd *Fd_t) f() *File_t {
	return fd.rc.Get()
}

func (fd *Fd_t) Fops() fdops.Fdops_i {
	return fd.f().Fops
}

func (fd *Fd_t) Perms() int {
	return fd.f().Perms
}

// another descriptor for the same open file (dup(2), fork).
func Copyfd(k lock.Kctx_i, fd *Fd_t) *Fd_t {
	return &Fd_t{rc: fd.rc.Dup(k)}
}

// drops this descriptor's reference; the object is closed with the last
// one. fd must not be used afterwards.
func (fd *Fd_t) Close(k lock.Kctx_i) defs.Err_t {
	fd.rc.Free(k)
	return 0
}

func (fd *Fd_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	f := fd.f()
	if f.Perms&FD_READ == 0 {
		return 0, -defs.EBADF
	}
	return f.Fops.Read(k, dst)
}

func (fd *Fd_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	f := fd.f()
	if f.Perms&FD_WRITE == 0 {
		return 0, -defs.EBADF
	}
	return f.Fops.Write(k, src)
}

func (fd *Fd_t) Fstat(k lock.Kctx_i, st *stat.Stat_t) defs.Err_t {
	return fd.f().Fops.Fstat(k, st)
}

func perms(omode defs.Fdopt_t) int {
	switch omode & (defs.O_WRONLY | defs.O_RDWR) {
	case defs.O_WRONLY:
		return FD_WRITE
	case defs.O_RDWR:
		return FD_READ | FD_WRITE
	}
	return FD_READ
}
