// Package hw simulates the machine the kernel runs on: physical memory,
// the MMIO bus, harts' interrupt lines, the CLINT timer, the PLIC, a UART
// and a legacy virtio-MMIO block device.
package hw

import "fmt"
import "sync/atomic"
import "unsafe"

import "golang.org/x/sys/unix"

import "rv6/riscv"

// physical memory. the whole of RAM is a single anonymous mapping, so
// addresses handed to devices and stored in page-table entries are real
// offsets into it.
type Ram_t struct {
	base uint64
	mem  []uint8
}

func MkRam(base uint64, size int) (*Ram_t, error) {
	if size%riscv.PGSIZE != 0 || size <= 0 {
		return nil, fmt.Errorf("bad ram size %d", size)
	}
	m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mmap ram: %v", err)
	}
	return &Ram_t{base: base, mem: m}, nil
}

func (r *Ram_t) Base() uint64 {
	return r.base
}

func (r *Ram_t) Top() uint64 {
	return r.base + uint64(len(r.mem))
}

func (r *Ram_t) Contains(pa uint64, n int) bool {
	return pa >= r.base && pa+uint64(n) <= r.Top() && pa+uint64(n) >= pa
}

// returns the n bytes of physical memory at pa. an access outside of RAM is a
// bus error.
func (r *Ram_t) Slice(pa uint64, n int) []uint8 {
	if !r.Contains(pa, n) {
		panic(fmt.Sprintf("bus error: pa %#x len %d", pa, n))
	}
	off := pa - r.base
	return r.mem[off : off+uint64(n) : off+uint64(n)]
}

func (r *Ram_t) ptr32(pa uint64) *uint32 {
	if pa%4 != 0 {
		panic("misaligned")
	}
	return (*uint32)(unsafe.Pointer(&r.Slice(pa, 4)[0]))
}

// device-visible word accesses.
func (r *Ram_t) Load32(pa uint64) uint32 {
	return atomic.LoadUint32(r.ptr32(pa))
}

func (r *Ram_t) Store32(pa uint64, v uint32) {
	atomic.StoreUint32(r.ptr32(pa), v)
}

// gives the pages of [pa, pa+n) back to the host. contents read as zero
// afterwards.
func (r *Ram_t) Discard(pa uint64, n int) {
	if pa%riscv.PGSIZE != 0 || n%riscv.PGSIZE != 0 {
		panic("discard alignment")
	}
	if err := unix.Madvise(r.Slice(pa, n), unix.MADV_DONTNEED); err != nil {
		panic(err)
	}
}

func (r *Ram_t) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}
