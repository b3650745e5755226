package hw

import "fmt"
import "sort"

// a memory-mapped device register window.
type Mmio_i interface {
	Read32(off uint64) uint32
	Write32(off uint64, v uint32)
}

type window_t struct {
	base uint64
	size uint64
	dev  Mmio_i
}

// routes physical addresses outside of RAM to device register windows.
type Bus_t struct {
	wins []window_t
}

func (b *Bus_t) Attach(base, size uint64, dev Mmio_i) {
	for _, w := range b.wins {
		if base < w.base+w.size && w.base < base+size {
			panic("overlapping mmio window")
		}
	}
	b.wins = append(b.wins, window_t{base, size, dev})
	sort.Slice(b.wins, func(i, j int) bool {
		return b.wins[i].base < b.wins[j].base
	})
}

func (b *Bus_t) find(pa uint64) (Mmio_i, uint64) {
	i := sort.Search(len(b.wins), func(i int) bool {
		return b.wins[i].base+b.wins[i].size > pa
	})
	if i < len(b.wins) && b.wins[i].base <= pa {
		return b.wins[i].dev, pa - b.wins[i].base
	}
	panic(fmt.Sprintf("bus error: mmio %#x", pa))
}

func (b *Bus_t) Read32(pa uint64) uint32 {
	d, off := b.find(pa)
	return d.Read32(off)
}

func (b *Bus_t) Write32(pa uint64, v uint32) {
	d, off := b.find(pa)
	d.Write32(off, v)
}
