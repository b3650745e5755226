package mem

import "unsafe"

func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

// the frame containing physical address p, as seen through the kernel's
// direct map of RAM.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	b := phys.ram.Slice(uint64(p&PGMASK), PGSIZE)
	return (*Pg_t)(unsafe.Pointer(&b[0]))
}

// the bytes from p to the end of its frame.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	bpg := Pg2bytes(phys.Dmap(p))
	return bpg[p&PGOFFSET:]
}

// l bytes of physical memory at p. the range may cross frames.
func (phys *Physmem_t) Dmaplen(p Pa_t, l int) []uint8 {
	return phys.ram.Slice(uint64(p), l)
}
