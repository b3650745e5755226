// Package riscv describes the parts of the RISC-V Sv39 machine the kernel
// depends on: page-table entry format, address-space limits, the physical
// memory map and trap causes.
package riscv

const (
	PGSIZE  = 4096
	PGSHIFT = 12
)

type Pte_t uint64

const (
	PTE_V Pte_t = 1 << 0
	PTE_R Pte_t = 1 << 1
	PTE_W Pte_t = 1 << 2
	PTE_X Pte_t = 1 << 3
	PTE_U Pte_t = 1 << 4
	PTE_G Pte_t = 1 << 5
	PTE_A Pte_t = 1 << 6
	PTE_D Pte_t = 1 << 7

	PTE_FLAGSMASK Pte_t = 0x3ff
)

const PXMASK = 0x1ff

func PXSHIFT(level int) uint {
	return uint(PGSHIFT + 9*level)
}

// the 9-bit page-table index of va at level
func PX(level int, va uint64) int {
	return int((va >> PXSHIFT(level)) & PXMASK)
}

func PA2PTE(pa uint64) Pte_t {
	return Pte_t((pa >> 12) << 10)
}

func PTE2PA(pte Pte_t) uint64 {
	return uint64(pte>>10) << 12
}

func PTE_FLAGS(pte Pte_t) Pte_t {
	return pte & PTE_FLAGSMASK
}

func (p Pte_t) Valid() bool {
	return p&PTE_V != 0
}

// a valid entry with none of R/W/X points at the next level table.
func (p Pte_t) Intermediate() bool {
	return p&PTE_V != 0 && p&(PTE_R|PTE_W|PTE_X) == 0
}

// one beyond the highest possible virtual address. MAXVA is actually one bit
// less than the max allowed by Sv39, to avoid having to sign-extend virtual
// addresses that have the high bit set.
const MAXVA uint64 = 1 << (9 + 9 + 9 + 12 - 1)

const SATP_SV39 uint64 = 8 << 60

func MAKE_SATP(pagetable uint64) uint64 {
	return SATP_SV39 | (pagetable >> 12)
}

func SATP2PA(satp uint64) uint64 {
	return (satp &^ SATP_SV39) << 12
}

func PGROUNDUP(sz uint64) uint64 {
	return (sz + PGSIZE - 1) &^ (PGSIZE - 1)
}

func PGROUNDDOWN(a uint64) uint64 {
	return a &^ (PGSIZE - 1)
}
