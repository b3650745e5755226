package fdops

import "rv6/defs"
import "rv6/lock"
import "rv6/stat"

// interface for reading/writing from user space memory either via a pointer
// and length or a kernel buffer standing in for one.
type Userio_i interface {
	// copy src to user memory
	Uiowrite(src []uint8) (int, defs.Err_t)
	// copy user memory to dst
	Uioread(dst []uint8) (int, defs.Err_t)
	// returns the number of unwritten/unread bytes remaining
	Remain() int
	// the total buffer size
	Totalsz() int
}

// the operations behind an open file: inodes, devices and pipe ends.
type Fdops_i interface {
	// called once, when the last reference to the open file goes away
	Close(k lock.Kctx_i) defs.Err_t
	Fstat(k lock.Kctx_i, st *stat.Stat_t) defs.Err_t
	Read(k lock.Kctx_i, dst Userio_i) (int, defs.Err_t)
	Write(k lock.Kctx_i, src Userio_i) (int, defs.Err_t)
}

// a device's read and write entry points, indexed by major number.
type Devsw_i interface {
	Read(k lock.Kctx_i, dst Userio_i) (int, defs.Err_t)
	Write(k lock.Kctx_i, src Userio_i) (int, defs.Err_t)
}
