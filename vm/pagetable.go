// Package vm manages Sv39 page tables: the kernel's direct map and each
// process's user address space, plus copying between kernel and user
// memory.
package vm

import "fmt"
import "unsafe"

import "rv6/cpu"
import "rv6/defs"
import "rv6/mem"
import "rv6/riscv"

const vm_debug = false

// a page-table page is 512 PTEs.
type Pagetable_t struct {
	Root mem.Pa_t
	phys *mem.Physmem_t
}

func Mkpagetable(h cpu.Hartctx_i, phys *mem.Physmem_t) (*Pagetable_t, bool) {
	root, ok := phys.Zalloc(h)
	if !ok {
		return nil, false
	}
	return &Pagetable_t{Root: root, phys: phys}, true
}

func (pt *Pagetable_t) ent(tbl mem.Pa_t, idx int) *riscv.Pte_t {
	pg := pt.phys.Dmap(tbl)
	return (*riscv.Pte_t)(unsafe.Pointer(&pg[idx]))
}

// returns the address of the PTE in page table pt that corresponds to
// virtual address va. if alloc is true, creates any required page-table
// pages.
//
// the risc-v Sv39 scheme has three levels of page-table pages. a page-table
// page contains 512 64-bit PTEs. a 64-bit virtual address is split into five
// fields:
//
//	39..63 -- must be zero.
//	30..38 -- 9 bits of level-2 index.
//	21..29 -- 9 bits of level-1 index.
//	12..20 -- 9 bits of level-0 index.
//	 0..11 -- 12 bits of byte offset within the page.
func (pt *Pagetable_t) Walk(h cpu.Hartctx_i, va uint64, alloc bool) (*riscv.Pte_t, bool) {
	if va >= riscv.MAXVA {
		panic("walk")
	}
	tbl := pt.Root
	for level := 2; level > 0; level-- {
		pte := pt.ent(tbl, riscv.PX(level, va))
		if pte.Valid() {
			if !pte.Intermediate() {
				panic("walk: superpage")
			}
			tbl = mem.Pa_t(riscv.PTE2PA(*pte))
			continue
		}
		if !alloc {
			return nil, false
		}
		npg, ok := pt.phys.Zalloc(h)
		if !ok {
			return nil, false
		}
		*pte = riscv.PA2PTE(uint64(npg)) | riscv.PTE_V
		tbl = npg
	}
	return pt.ent(tbl, riscv.PX(0, va)), true
}

// looks up a virtual address, returns the physical address, or false if not
// mapped. can only be used to look up user pages.
func (pt *Pagetable_t) Walkaddr(va uint64) (mem.Pa_t, bool) {
	if va >= riscv.MAXVA {
		return 0, false
	}
	pte, ok := pt.Walk(nil, va, false)
	if !ok || !pte.Valid() || *pte&riscv.PTE_U == 0 {
		return 0, false
	}
	return mem.Pa_t(riscv.PTE2PA(*pte)), true
}

// translates va the way the MMU would for a user access that needs the
// permission bits in need. returns the physical address of va itself.
func (pt *Pagetable_t) Translate(va uint64, need riscv.Pte_t) (mem.Pa_t, bool) {
	if va >= riscv.MAXVA {
		return 0, false
	}
	pte, ok := pt.Walk(nil, va, false)
	if !ok || !pte.Valid() {
		return 0, false
	}
	if *pte&(need|riscv.PTE_U) != need|riscv.PTE_U {
		return 0, false
	}
	return mem.Pa_t(riscv.PTE2PA(*pte) + va%riscv.PGSIZE), true
}

// creates PTEs for virtual addresses starting at va that refer to physical
// addresses starting at pa. va and size might not be page-aligned. fails if
// walk couldn't allocate a needed page-table page.
func (pt *Pagetable_t) Mappages(h cpu.Hartctx_i, va, size uint64, pa mem.Pa_t,
	perm riscv.Pte_t) defs.Err_t {
	if size == 0 {
		panic("mappages: size")
	}
	a := riscv.PGROUNDDOWN(va)
	last := riscv.PGROUNDDOWN(va + size - 1)
	for {
		pte, ok := pt.Walk(h, a, true)
		if !ok {
			return -defs.ENOMEM
		}
		if pte.Valid() {
			panic("remap")
		}
		*pte = riscv.PA2PTE(uint64(pa)) | perm | riscv.PTE_V
		if vm_debug {
			fmt.Printf("map %#x -> %#x %#x\n", a, pa, perm)
		}
		if a == last {
			break
		}
		a += riscv.PGSIZE
		pa += riscv.PGSIZE
	}
	return 0
}

// removes npages of mappings starting from va. va must be page-aligned and
// the mappings must exist. optionally frees the physical memory.
func (pt *Pagetable_t) Unmap(h cpu.Hartctx_i, va uint64, npages int, dofree bool) {
	if va%riscv.PGSIZE != 0 {
		panic("uvmunmap: not aligned")
	}
	for a := va; a < va+uint64(npages)*riscv.PGSIZE; a += riscv.PGSIZE {
		pte, ok := pt.Walk(h, a, false)
		if !ok {
			panic("uvmunmap: walk")
		}
		if !pte.Valid() {
			panic("uvmunmap: not mapped")
		}
		if riscv.PTE_FLAGS(*pte) == riscv.PTE_V {
			panic("uvmunmap: not a leaf")
		}
		if dofree {
			pt.phys.Free(h, mem.Pa_t(riscv.PTE2PA(*pte)))
		}
		*pte = 0
	}
}

// recursively frees page-table pages. all leaf mappings must already have
// been removed.
func (pt *Pagetable_t) Freewalk(h cpu.Hartctx_i) {
	pt.freewalk(h, pt.Root)
	pt.Root = 0
}

func (pt *Pagetable_t) freewalk(h cpu.Hartctx_i, tbl mem.Pa_t) {
	// there are 2^9 = 512 PTEs in a page table.
	for i := 0; i < 512; i++ {
		pte := pt.ent(tbl, i)
		if pte.Intermediate() {
			pt.freewalk(h, mem.Pa_t(riscv.PTE2PA(*pte)))
			*pte = 0
		} else if pte.Valid() {
			panic("freewalk: leaf")
		}
	}
	pt.phys.Free(h, tbl)
}

// the satp value that installs this table.
func (pt *Pagetable_t) Satp() uint64 {
	return riscv.MAKE_SATP(uint64(pt.Root))
}
