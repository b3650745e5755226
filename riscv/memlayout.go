package riscv

// Physical memory layout, as on qemu -machine virt:
// 02000000 -- CLINT
// 0C000000 -- PLIC
// 10000000 -- uart0
// 10001000 -- virtio disk
// 80000000 -- kernel text, then kernel data, then free RAM up to PHYSTOP.

const (
	CLINT uint64 = 0x2000000

	PLIC uint64 = 0x0c000000

	UART0     uint64 = 0x10000000
	UART0_IRQ        = 10

	VIRTIO0     uint64 = 0x10001000
	VIRTIO0_IRQ        = 1

	KERNBASE uint64 = 0x80000000
	// default top of RAM; a machine may have less.
	PHYSTOP uint64 = KERNBASE + 128*1024*1024
)

const (
	PLIC_PRIORITY uint64 = PLIC + 0x0
	PLIC_PENDING  uint64 = PLIC + 0x1000
)

func PLIC_SENABLE(hart int) uint64 {
	return PLIC + 0x2080 + uint64(hart)*0x100
}

func PLIC_SPRIORITY(hart int) uint64 {
	return PLIC + 0x201000 + uint64(hart)*0x2000
}

func PLIC_SCLAIM(hart int) uint64 {
	return PLIC + 0x201004 + uint64(hart)*0x2000
}

// map the trampoline page to the highest address, in both user and kernel
// space.
const TRAMPOLINE uint64 = MAXVA - PGSIZE

// the trapframe sits just below the trampoline in user space.
const TRAPFRAME uint64 = TRAMPOLINE - PGSIZE

// kernel stacks are mapped beneath the trampoline, each surrounded by an
// invalid guard page.
func KSTACK(p int) uint64 {
	return TRAMPOLINE - uint64(p+1)*2*PGSIZE
}
