package vm

import "fmt"

import "rv6/defs"
import "rv6/riscv"

// a helper object for reading/writing a range of user memory in pieces.
type Userbuf_t struct {
	userva uint64
	len    int
	// 0 <= off <= len
	off int
	um  *Usermem_t
}

func (um *Usermem_t) Mkuserbuf(userva uint64, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(um, userva, len)
	return ret
}

func (ub *Userbuf_t) ub_init(um *Usermem_t, uva uint64, len int) {
	if len < 0 {
		panic("negative length")
	}
	if uint64(len) >= riscv.MAXVA {
		fmt.Printf("suspiciously large user buffer (%v)\n", len)
	}
	ub.userva = uva
	ub.len = len
	ub.off = 0
	ub.um = um
}

func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub._tx(dst, false)
}

func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub._tx(src, true)
}

// copies the min of either the provided buffer or ub.len. returns number of
// bytes copied and error. if an error occurs in the middle of a read or
// write, the userbuf's state is updated such that the operation can be
// restarted.
func (ub *Userbuf_t) _tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.userva + uint64(ub.off)
		ubuf, err := ub.um.Userdmap8(va, write)
		if err != 0 {
			return ret, err
		}
		end := ub.off + len(ubuf)
		if end > ub.len {
			left := ub.len - ub.off
			ubuf = ubuf[:left]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

// helper type which kernel code can use as userio_i, but is actually a
// kernel buffer (i.e. reading an ELF header from the file system for
// exec(2)).
type Fakeubuf_t struct {
	fbuf []uint8
	off  int
	len  int
}

func Mkfakeubuf(buf []uint8) *Fakeubuf_t {
	fb := &Fakeubuf_t{}
	fb.Fake_init(buf)
	return fb
}

func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.fbuf = buf
	fb.len = len(fb.fbuf)
}

func (fb *Fakeubuf_t) Remain() int {
	return len(fb.fbuf)
}

func (fb *Fakeubuf_t) Totalsz() int {
	return fb.len
}

func (fb *Fakeubuf_t) _tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.fbuf, buf)
	} else {
		c = copy(buf, fb.fbuf)
	}
	fb.fbuf = fb.fbuf[c:]
	fb.off += c
	return c, 0
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb._tx(dst, false)
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb._tx(src, true)
}
