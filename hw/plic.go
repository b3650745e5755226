package hw

import "sync"

const nirq = 32

// the platform-level interrupt controller. only the registers the kernel
// programs are modeled: per-source priority, pending bits, and for each
// hart's supervisor context an enable mask, a threshold and claim/complete.
type Plic_t struct {
	sync.Mutex
	prio    [nirq]uint32
	pending uint32
	claimed uint32
	enable  []uint32
	thresh  []uint32
	harts   []*Hart_t
}

func mkPlic(harts []*Hart_t) *Plic_t {
	p := &Plic_t{harts: harts}
	p.enable = make([]uint32, len(harts))
	p.thresh = make([]uint32, len(harts))
	return p
}

// raises source irq.
func (p *Plic_t) Irq(irq int) {
	p.Lock()
	p.pending |= 1 << uint(irq)
	p.update()
	p.Unlock()
}

func (p *Plic_t) deliverable(h int) uint32 {
	var m uint32
	for irq := 1; irq < nirq; irq++ {
		b := uint32(1) << uint(irq)
		if p.pending&b != 0 && p.enable[h]&b != 0 &&
			p.claimed&b == 0 && p.prio[irq] > p.thresh[h] {
			m |= b
		}
	}
	return m
}

// recomputes each hart's external interrupt line.
func (p *Plic_t) update() {
	for i, h := range p.harts {
		if p.deliverable(i) != 0 {
			h.Raise(SEIP)
		} else {
			h.Clear(SEIP)
		}
	}
}

func (p *Plic_t) claim(h int) uint32 {
	m := p.deliverable(h)
	for irq := 1; irq < nirq; irq++ {
		b := uint32(1) << uint(irq)
		if m&b != 0 {
			p.pending &^= b
			p.claimed |= b
			p.update()
			return uint32(irq)
		}
	}
	return 0
}

func (p *Plic_t) complete(irq uint32) {
	if irq == 0 || irq >= nirq {
		return
	}
	p.claimed &^= 1 << irq
	p.update()
}

// register offsets relative to the PLIC base
const (
	plic_pending  = 0x1000
	plic_senable  = 0x2080
	plic_context  = 0x201000
	plic_ctxsize  = 0x2000
	plic_enstride = 0x100
)

func (p *Plic_t) Read32(off uint64) uint32 {
	p.Lock()
	defer p.Unlock()
	switch {
	case off < 4*nirq:
		return p.prio[off/4]
	case off == plic_pending:
		return p.pending
	case off >= plic_senable && off < plic_senable+plic_enstride*uint64(len(p.harts)):
		return p.enable[(off-plic_senable)/plic_enstride]
	case off >= plic_context:
		h := int((off - plic_context) / plic_ctxsize)
		r := (off - plic_context) % plic_ctxsize
		if h >= len(p.harts) {
			break
		}
		switch r {
		case 0:
			return p.thresh[h]
		case 4:
			return p.claim(h)
		}
	}
	return 0
}

func (p *Plic_t) Write32(off uint64, v uint32) {
	p.Lock()
	defer p.Unlock()
	switch {
	case off < 4*nirq:
		p.prio[off/4] = v
	case off >= plic_senable && off < plic_senable+plic_enstride*uint64(len(p.harts)):
		p.enable[(off-plic_senable)/plic_enstride] = v
	case off >= plic_context:
		h := int((off - plic_context) / plic_ctxsize)
		r := (off - plic_context) % plic_ctxsize
		if h >= len(p.harts) {
			return
		}
		switch r {
		case 0:
			p.thresh[h] = v
		case 4:
			p.complete(v)
			return
		}
	}
	p.update()
}
