package vm

import "rv6/defs"
import "rv6/riscv"
import "rv6/util"

// the user bytes from va to the end of its page. write requires the page
// be writable.
func (um *Usermem_t) Userdmap8(va uint64, write bool) ([]uint8, defs.Err_t) {
	need := riscv.PTE_R
	if write {
		need = riscv.PTE_W
	}
	pa, ok := um.pt.Translate(va, need)
	if !ok {
		return nil, -defs.EFAULT
	}
	return um.pt.phys.Dmap8(pa), 0
}

// copies from kernel to user. copies len(src) bytes to virtual address
// dstva.
func (um *Usermem_t) Copyout(dstva uint64, src []uint8) defs.Err_t {
	for len(src) > 0 {
		ub, err := um.Userdmap8(dstva, true)
		if err != 0 {
			return err
		}
		c := copy(ub, src)
		src = src[c:]
		dstva += uint64(c)
	}
	return 0
}

// copies from user to kernel. fills dst from virtual address srcva.
func (um *Usermem_t) Copyin(dst []uint8, srcva uint64) defs.Err_t {
	for len(dst) > 0 {
		ub, err := um.Userdmap8(srcva, false)
		if err != 0 {
			return err
		}
		c := copy(dst, ub)
		dst = dst[c:]
		srcva += uint64(c)
	}
	return 0
}

// copies a NUL-terminated string from user to kernel, reading at most max
// bytes including the NUL. the result excludes the NUL.
func (um *Usermem_t) Copyinstr(srcva uint64, max int) ([]uint8, defs.Err_t) {
	var ret []uint8
	for len(ret) < max {
		ub, err := um.Userdmap8(srcva, false)
		if err != 0 {
			return nil, err
		}
		ub = ub[:util.Min(len(ub), max-len(ret))]
		for i, c := range ub {
			if c == 0 {
				return append(ret, ub[:i]...), 0
			}
		}
		ret = append(ret, ub...)
		srcva += uint64(len(ub))
	}
	return nil, -defs.ENAMETOOLONG
}

// reads an n-byte little-endian integer from user memory.
func (um *Usermem_t) Userreadn(va uint64, n int) (int, defs.Err_t) {
	var b [8]uint8
	if err := um.Copyin(b[:n], va); err != 0 {
		return 0, err
	}
	return util.Readn(b[:], n, 0), 0
}

func (um *Usermem_t) Userwriten(va uint64, n int, val int) defs.Err_t {
	var b [8]uint8
	util.Writen(b[:], n, 0, val)
	return um.Copyout(va, b[:n])
}
