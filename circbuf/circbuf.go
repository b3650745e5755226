package circbuf

import "rv6/cpu"
import "rv6/defs"
import "rv6/fdops"
import "rv6/mem"

// a ring buffer backed by part of one physical page. not thread-safe; the
// pipe or device that owns it serializes access with its own lock.
type Circbuf_t struct {
	mem   mem.Page_i
	Buf   []uint8
	bufsz int
	// head and tail only grow; indices into Buf are taken mod bufsz
	head int
	tail int
	p_pg mem.Pa_t
}

func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

// the page is allocated on first use so that the caller handles ENOMEM at
// read/write time instead of at creation. whoever owns cb must eventually
// call Cb_release.
func (cb *Circbuf_t) Cb_init(sz int, m mem.Page_i) {
	if sz <= 0 || sz > mem.PGSIZE {
		panic("bad circbuf size")
	}
	cb.mem = m
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf_t) Cb_release(h cpu.Hartctx_i) {
	if cb.Buf == nil {
		return
	}
	cb.mem.Free(h, cb.p_pg)
	cb.p_pg = 0
	cb.Buf = nil
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf_t) Cb_ensure(h cpu.Hartctx_i) defs.Err_t {
	if cb.Buf != nil {
		return 0
	}
	if cb.bufsz == 0 {
		panic("not initted")
	}
	pa, ok := cb.mem.Alloc(h)
	if !ok {
		return -defs.ENOMEM
	}
	cb.p_pg = pa
	cb.Buf = cb.mem.Dmap8(pa)[:cb.bufsz]
	return 0
}

func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

func (cb *Circbuf_t) Left() int {
	return cb.bufsz - cb.Used()
}

func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

// copies as much of src as fits. returns the number of bytes taken.
func (cb *Circbuf_t) Copyin(h cpu.Hartctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	if err := cb.Cb_ensure(h); err != 0 {
		return 0, err
	}
	c := 0
	for !cb.Full() && src.Remain() != 0 {
		hi := cb.head % cb.bufsz
		end := hi + cb.Left()
		if end > cb.bufsz {
			end = cb.bufsz
		}
		n, err := src.Uioread(cb.Buf[hi:end])
		cb.head += n
		c += n
		if err != 0 {
			return c, err
		}
		if n == 0 {
			break
		}
	}
	return c, 0
}

func (cb *Circbuf_t) Copyout(h cpu.Hartctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	return cb.Copyout_n(h, dst, 0)
}

// copies at most max bytes (all buffered bytes if max is 0) to dst.
func (cb *Circbuf_t) Copyout_n(h cpu.Hartctx_i, dst fdops.Userio_i, max int) (int, defs.Err_t) {
	if err := cb.Cb_ensure(h); err != 0 {
		return 0, err
	}
	want := cb.Used()
	if max != 0 && max < want {
		want = max
	}
	c := 0
	for c < want && dst.Remain() != 0 {
		ti := cb.tail % cb.bufsz
		end := ti + (want - c)
		if end > cb.bufsz {
			end = cb.bufsz
		}
		n, err := dst.Uiowrite(cb.Buf[ti:end])
		cb.tail += n
		c += n
		if err != 0 {
			return c, err
		}
		if n == 0 {
			break
		}
	}
	return c, 0
}

// appends one byte; returns false if the buffer is full.
func (cb *Circbuf_t) Putc(b uint8) bool {
	if cb.Full() {
		return false
	}
	cb.Buf[cb.head%cb.bufsz] = b
	cb.head++
	return true
}

// removes the oldest byte.
func (cb *Circbuf_t) Getc() (uint8, bool) {
	if cb.Empty() {
		return 0, false
	}
	b := cb.Buf[cb.tail%cb.bufsz]
	cb.tail++
	return b, true
}
