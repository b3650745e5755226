package vm

import "rv6/cpu"
import "rv6/mem"
import "rv6/riscv"

// adds a mapping to the kernel page table. only used when booting.
func (pt *Pagetable_t) Kvmmap(h cpu.Hartctx_i, va uint64, pa mem.Pa_t, sz uint64,
	perm riscv.Pte_t) {
	if pt.Mappages(h, va, sz, pa, perm) != 0 {
		panic("kvmmap")
	}
}

// makes a direct-map page table for the kernel. text is [KERNBASE, etext);
// the trampoline page is mapped at the top of the address space.
func Kvmmake(h cpu.Hartctx_i, phys *mem.Physmem_t, etext, trampoline mem.Pa_t) *Pagetable_t {
	kpt, ok := Mkpagetable(h, phys)
	if !ok {
		panic("kvmmake")
	}
	// uart registers
	kpt.Kvmmap(h, riscv.UART0, mem.Pa_t(riscv.UART0), riscv.PGSIZE,
		riscv.PTE_R|riscv.PTE_W)
	// virtio mmio disk interface
	kpt.Kvmmap(h, riscv.VIRTIO0, mem.Pa_t(riscv.VIRTIO0), riscv.PGSIZE,
		riscv.PTE_R|riscv.PTE_W)
	// PLIC
	kpt.Kvmmap(h, riscv.PLIC, mem.Pa_t(riscv.PLIC), 0x400000,
		riscv.PTE_R|riscv.PTE_W)
	// kernel text executable and read-only.
	kpt.Kvmmap(h, riscv.KERNBASE, mem.Pa_t(riscv.KERNBASE),
		uint64(etext)-riscv.KERNBASE, riscv.PTE_R|riscv.PTE_X)
	// kernel data and the physical RAM we'll make use of.
	top := uint64(phys.Top())
	kpt.Kvmmap(h, uint64(etext), etext, top-uint64(etext),
		riscv.PTE_R|riscv.PTE_W)
	// the trampoline for trap entry/exit mapped to the highest virtual
	// address in the kernel.
	kpt.Kvmmap(h, riscv.TRAMPOLINE, trampoline, riscv.PGSIZE,
		riscv.PTE_R|riscv.PTE_X)
	return kpt
}
