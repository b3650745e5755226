package arena

import "rv6/lock"

// cells kept in an array. reuse picks the lowest-index unused cell.
type Arrayarena_t[T any] struct {
	lock.Spinlock_t
	cells []Staticarc_t[T]
}

func MkArrayarena[T any](name string, n int) *Arrayarena_t[T] {
	a := &Arrayarena_t[T]{cells: make([]Staticarc_t[T], n)}
	a.Init(name)
	return a
}

func (a *Arrayarena_t[T]) Cap() int {
	return len(a.cells)
}

func (a *Arrayarena_t[T]) mkrc(i int) *Rc_t[T] {
	return &Rc_t[T]{cell: &a.cells[i], arena: a, idx: i}
}

func (a *Arrayarena_t[T]) Find_or_alloc(k lock.Kctx_i, match func(*T) bool,
	init func(*T)) (*Rc_t[T], bool) {
	a.Acquire(k)
	defer a.Release(k)
	empty := -1
	for i := range a.cells {
		c := &a.cells[i]
		// unused cells hold stale data
		if c.Borrowed() && match(&c.data) {
			c.try_borrow()
			return a.mkrc(i), true
		}
		if empty == -1 && c.Unused() {
			empty = i
		}
	}
	if empty == -1 {
		return nil, false
	}
	return a.initcell(empty, init), true
}

func (a *Arrayarena_t[T]) initcell(i int, init func(*T)) *Rc_t[T] {
	c := &a.cells[i]
	d, ok := c.get_mut()
	if !ok {
		panic("init of used cell")
	}
	init(d)
	c.downgrade()
	return a.mkrc(i)
}

func (a *Arrayarena_t[T]) Alloc(k lock.Kctx_i, init func(*T)) (*Rc_t[T], bool) {
	a.Acquire(k)
	defer a.Release(k)
	for i := range a.cells {
		if a.cells[i].Unused() {
			return a.initcell(i, init), true
		}
	}
	return nil, false
}

func (a *Arrayarena_t[T]) Dup(k lock.Kctx_i, r *Rc_t[T]) *Rc_t[T] {
	a.Acquire(k)
	defer a.Release(k)
	if r.freed || !r.cell.try_borrow() {
		panic("dup")
	}
	return a.mkrc(r.idx)
}

func (a *Arrayarena_t[T]) Dealloc(k lock.Kctx_i, r *Rc_t[T]) {
	r.consume()
	a.Acquire(k)
	defer a.Release(k)
	if r.cell.release() {
		finalize(k, a, &r.cell.data)
		r.cell.unuse()
	}
}

func (a *Arrayarena_t[T]) Reacquire_after(k lock.Kctx_i, f func()) {
	a.Release(k)
	f()
	a.Acquire(k)
}

// calls f on every cell not being initialized or finalized, with the arena
// lock held, until f returns false. unused cells keep their last contents.
func (a *Arrayarena_t[T]) Iter(k lock.Kctx_i, f func(data *T, refcnt int) bool) {
	a.Acquire(k)
	defer a.Release(k)
	for i := range a.cells {
		c := &a.cells[i]
		if !c.Mut() && !f(&c.data, c.refcnt) {
			return
		}
	}
}

// the number of cells in use.
func (a *Arrayarena_t[T]) Nused(k lock.Kctx_i) int {
	a.Acquire(k)
	defer a.Release(k)
	n := 0
	for i := range a.cells {
		if !a.cells[i].Unused() {
			n++
		}
	}
	return n
}
