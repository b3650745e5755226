package vm

import "rv6/cpu"
import "rv6/defs"
import "rv6/mem"
import "rv6/riscv"

// user page permission for heap, text and stack pages.
const PTE_URWX = riscv.PTE_U | riscv.PTE_R | riscv.PTE_W | riscv.PTE_X

// a process's user address space: a page table mapping [0, size) to private
// frames, plus the shared trampoline and the process's trap frame at the
// top.
type Usermem_t struct {
	pt    *Pagetable_t
	size  uint64
	tramp mem.Pa_t
}

// an empty address space with only the trampoline and trap frame mapped.
func Mkusermem(h cpu.Hartctx_i, phys *mem.Physmem_t, tramp, tf mem.Pa_t) (*Usermem_t, defs.Err_t) {
	pt, ok := Mkpagetable(h, phys)
	if !ok {
		return nil, -defs.ENOMEM
	}
	// the trampoline, for trampoline.S, at the highest user virtual
	// address. only the supervisor uses it, on the way to/from user space,
	// so not PTE_U.
	if err := pt.Mappages(h, riscv.TRAMPOLINE, riscv.PGSIZE, tramp,
		riscv.PTE_R|riscv.PTE_X); err != 0 {
		pt.Freewalk(h)
		return nil, err
	}
	// the trapframe page just below the trampoline page.
	if err := pt.Mappages(h, riscv.TRAPFRAME, riscv.PGSIZE, tf,
		riscv.PTE_R|riscv.PTE_W); err != 0 {
		pt.Unmap(h, riscv.TRAMPOLINE, 1, false)
		pt.Freewalk(h)
		return nil, err
	}
	return &Usermem_t{pt: pt, tramp: tramp}, 0
}

func (um *Usermem_t) Pagetable() *Pagetable_t {
	return um.pt
}

func (um *Usermem_t) Size() uint64 {
	return um.size
}

// loads code into address 0 for the very first process. code must fit in
// one page.
func (um *Usermem_t) First(h cpu.Hartctx_i, code []uint8) defs.Err_t {
	if len(code) >= riscv.PGSIZE || um.size != 0 {
		panic("uvmfirst: more than a page")
	}
	pa, ok := um.pt.phys.Zalloc(h)
	if !ok {
		return -defs.ENOMEM
	}
	if err := um.pt.Mappages(h, 0, riscv.PGSIZE, pa, PTE_URWX); err != 0 {
		um.pt.phys.Free(h, pa)
		return err
	}
	copy(mem.Pg2bytes(um.pt.phys.Dmap(pa))[:], code)
	um.size = riscv.PGSIZE
	return 0
}

// allocates frames and PTEs to grow the address space to newsz, which need
// not be page aligned. on failure the pages added so far are removed.
func (um *Usermem_t) Grow(h cpu.Hartctx_i, newsz uint64, perm riscv.Pte_t) defs.Err_t {
	oldsz := um.size
	if newsz < oldsz {
		return 0
	}
	if newsz > riscv.TRAPFRAME {
		return -defs.ENOMEM
	}
	for a := riscv.PGROUNDUP(oldsz); a < newsz; a += riscv.PGSIZE {
		pa, ok := um.pt.phys.Zalloc(h)
		if !ok {
			um.dealloc(h, a, oldsz)
			return -defs.ENOMEM
		}
		if err := um.pt.Mappages(h, a, riscv.PGSIZE, pa, perm|riscv.PTE_U); err != 0 {
			um.pt.phys.Free(h, pa)
			um.dealloc(h, a, oldsz)
			return err
		}
	}
	um.size = newsz
	return 0
}

// frees the pages of [newsz, oldsz).
func (um *Usermem_t) dealloc(h cpu.Hartctx_i, oldsz, newsz uint64) {
	if newsz >= oldsz {
		return
	}
	if riscv.PGROUNDUP(newsz) < riscv.PGROUNDUP(oldsz) {
		npages := (riscv.PGROUNDUP(oldsz) - riscv.PGROUNDUP(newsz)) / riscv.PGSIZE
		um.pt.Unmap(h, riscv.PGROUNDUP(newsz), int(npages), true)
	}
}

// shrinks the address space to newsz, freeing the pages beyond it.
func (um *Usermem_t) Shrink(h cpu.Hartctx_i, newsz uint64) {
	if newsz >= um.size {
		return
	}
	um.dealloc(h, um.size, newsz)
	um.size = newsz
}

// grows or shrinks the address space by n bytes, returning the old size.
func (um *Usermem_t) Sbrk(h cpu.Hartctx_i, n int) (uint64, defs.Err_t) {
	old := um.size
	if n > 0 {
		if err := um.Grow(h, old+uint64(n), PTE_URWX); err != 0 {
			return 0, err
		}
	} else if n < 0 {
		if uint64(-n) > old {
			return 0, -defs.EINVAL
		}
		um.Shrink(h, old-uint64(-n))
	}
	return old, 0
}

// a copy of the address space, with its own trap frame at tf. copies both
// the page table and the physical memory. on failure frees everything it
// allocated.
func (um *Usermem_t) Clone(h cpu.Hartctx_i, tf mem.Pa_t) (*Usermem_t, defs.Err_t) {
	phys := um.pt.phys
	nm, err := Mkusermem(h, phys, um.tramp, tf)
	if err != 0 {
		return nil, err
	}
	for a := uint64(0); a < um.size; a += riscv.PGSIZE {
		pte, ok := um.pt.Walk(h, a, false)
		if !ok || !pte.Valid() {
			panic("uvmcopy: page not present")
		}
		pa := mem.Pa_t(riscv.PTE2PA(*pte))
		flags := riscv.PTE_FLAGS(*pte) &^ riscv.PTE_V
		npa, ok := phys.Alloc(h)
		if !ok {
			nm.size = a
			nm.Free(h)
			return nil, -defs.ENOMEM
		}
		*mem.Pg2bytes(phys.Dmap(npa)) = *mem.Pg2bytes(phys.Dmap(pa))
		if err := nm.pt.Mappages(h, a, riscv.PGSIZE, npa, flags); err != 0 {
			phys.Free(h, npa)
			nm.size = a
			nm.Free(h)
			return nil, err
		}
	}
	nm.size = um.size
	return nm, 0
}

// marks a PTE invalid for user access. used by exec for the user stack
// guard page.
func (um *Usermem_t) Clear(va uint64) {
	pte, ok := um.pt.Walk(nil, va, false)
	if !ok {
		panic("uvmclear")
	}
	*pte &^= riscv.PTE_U
}

// frees user memory pages, then frees page-table pages. the trap frame
// belongs to the process and is not freed.
func (um *Usermem_t) Free(h cpu.Hartctx_i) {
	um.pt.Unmap(h, riscv.TRAMPOLINE, 1, false)
	um.pt.Unmap(h, riscv.TRAPFRAME, 1, false)
	if um.size > 0 {
		um.pt.Unmap(h, 0, int(riscv.PGROUNDUP(um.size)/riscv.PGSIZE), true)
	}
	um.size = 0
	um.pt.Freewalk(h)
}
