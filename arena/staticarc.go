// Package arena implements fixed-capacity allocators of reference-counted
// cells. A cell is UNUSED (no references), BORROWED (shared references) or
// MUT (one exclusive reference, while being initialized or finalized).
package arena

import "math"

import "rv6/lock"

const BORROWED_MUT = math.MaxInt32

type Staticarc_t[T any] struct {
	refcnt int
	data   T
}

func (c *Staticarc_t[T]) Unused() bool {
	return c.refcnt == 0
}

func (c *Staticarc_t[T]) Borrowed() bool {
	return c.refcnt > 0 && c.refcnt != BORROWED_MUT
}

func (c *Staticarc_t[T]) Mut() bool {
	return c.refcnt == BORROWED_MUT
}

func (c *Staticarc_t[T]) Refcnt() int {
	return c.refcnt
}

// a shared borrow can be taken unless the cell is being written.
func (c *Staticarc_t[T]) try_borrow() bool {
	if c.refcnt == BORROWED_MUT {
		return false
	}
	if c.refcnt == BORROWED_MUT-1 {
		panic("refcnt overflow")
	}
	c.refcnt++
	return true
}

func (c *Staticarc_t[T]) get_mut() (*T, bool) {
	if c.refcnt != 0 {
		return nil, false
	}
	c.refcnt = BORROWED_MUT
	return &c.data, true
}

// MUT -> BORROWED with one reference.
func (c *Staticarc_t[T]) downgrade() {
	if c.refcnt != BORROWED_MUT {
		panic("downgrade")
	}
	c.refcnt = 1
}

// drops one shared reference. the last one leaves the cell MUT so the
// caller can finalize it.
func (c *Staticarc_t[T]) release() bool {
	if !c.Borrowed() {
		panic("release of unborrowed cell")
	}
	c.refcnt--
	if c.refcnt == 0 {
		c.refcnt = BORROWED_MUT
		return true
	}
	return false
}

func (c *Staticarc_t[T]) unuse() {
	if c.refcnt != BORROWED_MUT {
		panic("unuse")
	}
	c.refcnt = 0
}

// lets a finalizer drop the arena lock while it does I/O.
type Guard_i interface {
	Reacquire_after(k lock.Kctx_i, f func())
}

// implemented by arena objects that must be cleaned up when their last
// reference is dropped. Finalize runs with the arena lock held and the cell
// exclusively owned.
type Finalizer_i interface {
	Finalize(k lock.Kctx_i, g Guard_i)
}

type Arena_i[T any] interface {
	Find_or_alloc(k lock.Kctx_i, match func(*T) bool, init func(*T)) (*Rc_t[T], bool)
	Alloc(k lock.Kctx_i, init func(*T)) (*Rc_t[T], bool)
	Dup(k lock.Kctx_i, r *Rc_t[T]) *Rc_t[T]
	Dealloc(k lock.Kctx_i, r *Rc_t[T])
}

// one holder's reference to an arena cell. each handle must be given back
// exactly once.
type Rc_t[T any] struct {
	cell  *Staticarc_t[T]
	arena Arena_i[T]
	idx   int
	freed bool
}

func (r *Rc_t[T]) Get() *T {
	if r.freed {
		panic("use of freed reference")
	}
	return &r.cell.data
}

// a new reference to the same cell.
func (r *Rc_t[T]) Dup(k lock.Kctx_i) *Rc_t[T] {
	return r.arena.Dup(k, r)
}

func (r *Rc_t[T]) Free(k lock.Kctx_i) {
	r.arena.Dealloc(k, r)
}

// do two references name the same cell?
func (r *Rc_t[T]) Same(o *Rc_t[T]) bool {
	return r.cell == o.cell
}

func (r *Rc_t[T]) consume() {
	if r.freed {
		panic("double free of reference")
	}
	r.freed = true
}

func finalize[T any](k lock.Kctx_i, g Guard_i, data *T) {
	if f, ok := any(data).(Finalizer_i); ok {
		f.Finalize(k, g)
	}
}
