// Package mem allocates physical page frames. Free frames are kept on a
// list threaded through the first word of each free frame.
package mem

import "fmt"

import "rv6/cpu"
import "rv6/hw"
import "rv6/lock"
import "rv6/riscv"

const PGSIZE = riscv.PGSIZE
const PGOFFSET Pa_t = PGSIZE - 1
const PGMASK Pa_t = ^PGOFFSET

type Pa_t uint64
type Bytepg_t [PGSIZE]uint8
type Pg_t [512]uint64

// fill freed frames with junk to catch dangling references.
const poison = true

// allocate frames for page tables, user memory, kernel stacks and buffer
// payloads.
type Page_i interface {
	Alloc(h cpu.Hartctx_i) (Pa_t, bool)
	Free(h cpu.Hartctx_i, pa Pa_t)
	Dmap(pa Pa_t) *Pg_t
	Dmap8(pa Pa_t) []uint8
}

type Physmem_t struct {
	lock.Spinlock_t
	ram *hw.Ram_t
	// first frame the allocator may hand out; frames below belong to the
	// kernel image and boot-time carve-outs.
	end      Pa_t
	top      Pa_t
	freelist Pa_t
	freelen  int
	inited   bool
	// one bit per frame above end, set while the frame is free
	freemap []uint64
}

// kernel data ends at end; frames from there up to the top of RAM are
// managed by the allocator.
func Phys_init(ram *hw.Ram_t, end Pa_t) *Physmem_t {
	phys := &Physmem_t{ram: ram, end: Pa_t(riscv.PGROUNDUP(uint64(end))),
		top: Pa_t(ram.Top())}
	phys.Init("kmem")
	if phys.end < Pa_t(ram.Base()) || phys.end >= phys.top {
		panic("bad kernel end")
	}
	return phys
}

// takes n contiguous frames off the bottom of free memory. only valid
// before Freerange.
func (phys *Physmem_t) Boot_alloc(n int) Pa_t {
	if phys.inited {
		panic("boot_alloc after freerange")
	}
	pa := phys.end
	phys.end += Pa_t(n * PGSIZE)
	if phys.end > phys.top {
		panic("boot_alloc: out of memory")
	}
	return pa
}

// puts every frame in [end, top) on the free list.
func (phys *Physmem_t) Freerange(h cpu.Hartctx_i) {
	phys.inited = true
	phys.freemap = make([]uint64, int(phys.top-phys.end)/PGSIZE/64+1)
	for pa := phys.end; pa+PGSIZE <= phys.top; pa += PGSIZE {
		phys.Free(h, pa)
	}
}

func (phys *Physmem_t) End() Pa_t {
	return phys.end
}

func (phys *Physmem_t) Top() Pa_t {
	return phys.top
}

func (phys *Physmem_t) check(pa Pa_t) {
	if pa&PGOFFSET != 0 || pa < phys.end || pa >= phys.top {
		panic(fmt.Sprintf("freerange: bad frame %#x", pa))
	}
}

// frees the frame at pa, which normally should have been returned by a
// call to Alloc.
func (phys *Physmem_t) Free(h cpu.Hartctx_i, pa Pa_t) {
	phys.check(pa)
	pg := phys.Dmap(pa)
	if poison {
		b := Pg2bytes(pg)
		for i := range b {
			b[i] = 1
		}
	}
	phys.Acquire(h)
	if !phys.markfree(pa, true) {
		phys.Release(h)
		panic(fmt.Sprintf("double free of frame %#x", pa))
	}
	pg[0] = uint64(phys.freelist)
	phys.freelist = pa
	phys.freelen++
	phys.Release(h)
}

// sets pa's free bit to v and reports whether it changed. phys must be
// locked.
func (phys *Physmem_t) markfree(pa Pa_t, v bool) bool {
	i := int(pa-phys.end) / PGSIZE
	w, bit := &phys.freemap[i/64], uint64(1)<<(i%64)
	if (*w&bit != 0) == v {
		return false
	}
	*w ^= bit
	return true
}

// returns a frame that the kernel can use, or false if memory is
// exhausted. the frame's contents are junk.
func (phys *Physmem_t) Alloc(h cpu.Hartctx_i) (Pa_t, bool) {
	phys.Acquire(h)
	pa := phys.freelist
	if pa != 0 {
		phys.freelist = Pa_t(phys.Dmap(pa)[0])
		phys.markfree(pa, false)
		phys.freelen--
		if phys.freelen < 0 {
			panic("no")
		}
	}
	phys.Release(h)
	if pa == 0 {
		return 0, false
	}
	if poison {
		b := Pg2bytes(phys.Dmap(pa))
		for i := range b {
			b[i] = 5
		}
	}
	return pa, true
}

// like Alloc but the frame is zeroed.
func (phys *Physmem_t) Zalloc(h cpu.Hartctx_i) (Pa_t, bool) {
	pa, ok := phys.Alloc(h)
	if ok {
		*Pg2bytes(phys.Dmap(pa)) = Bytepg_t{}
	}
	return pa, ok
}

// the number of free frames.
func (phys *Physmem_t) Pgcount(h cpu.Hartctx_i) int {
	phys.Acquire(h)
	defer phys.Release(h)
	return phys.freelen
}

func (phys *Physmem_t) Ram() *hw.Ram_t {
	return phys.ram
}
