package arena

import "unsafe"

import "rv6/list"
import "rv6/lock"

type mruentry_t[T any] struct {
	link list.Listentry_t
	cell Staticarc_t[T]
	idx  int
}

// cells threaded on a list in order of use. a cell moves to the front when
// its last reference is dropped; reuse takes the unused cell closest to the
// back, so the least recently used one.
type Mruarena_t[T any] struct {
	lock.Spinlock_t
	ents []mruentry_t[T]
	head list.Listentry_t
}

func MkMruarena[T any](name string, n int) *Mruarena_t[T] {
	a := &Mruarena_t[T]{ents: make([]mruentry_t[T], n)}
	a.Init(name)
	a.head.Init()
	for i := range a.ents {
		e := &a.ents[i]
		e.idx = i
		e.link.Init()
		a.head.Push_back(&e.link)
	}
	return a
}

func (a *Mruarena_t[T]) ent(l *list.Listentry_t) *mruentry_t[T] {
	return list.Container[mruentry_t[T]](l, unsafe.Offsetof(a.ents[0].link))
}

func (a *Mruarena_t[T]) mkrc(e *mruentry_t[T]) *Rc_t[T] {
	return &Rc_t[T]{cell: &e.cell, arena: a, idx: e.idx}
}

func (a *Mruarena_t[T]) Find_or_alloc(k lock.Kctx_i, match func(*T) bool,
	init func(*T)) (*Rc_t[T], bool) {
	a.Acquire(k)
	defer a.Release(k)
	var found, empty *mruentry_t[T]
	a.head.Iter(func(l *list.Listentry_t) bool {
		e := a.ent(l)
		if !e.cell.Mut() && match(&e.cell.data) {
			found = e
			return false
		}
		if e.cell.Unused() {
			empty = e
		}
		return true
	})
	if found != nil {
		found.cell.try_borrow()
		return a.mkrc(found), true
	}
	if empty == nil {
		return nil, false
	}
	return a.initcell(empty, init), true
}

func (a *Mruarena_t[T]) initcell(e *mruentry_t[T], init func(*T)) *Rc_t[T] {
	d, ok := e.cell.get_mut()
	if !ok {
		panic("init of used cell")
	}
	init(d)
	e.cell.downgrade()
	return a.mkrc(e)
}

func (a *Mruarena_t[T]) Alloc(k lock.Kctx_i, init func(*T)) (*Rc_t[T], bool) {
	a.Acquire(k)
	defer a.Release(k)
	var empty *mruentry_t[T]
	a.head.Iter_back(func(l *list.Listentry_t) bool {
		e := a.ent(l)
		if e.cell.Unused() {
			empty = e
			return false
		}
		return true
	})
	if empty == nil {
		return nil, false
	}
	return a.initcell(empty, init), true
}

func (a *Mruarena_t[T]) Dup(k lock.Kctx_i, r *Rc_t[T]) *Rc_t[T] {
	a.Acquire(k)
	defer a.Release(k)
	if r.freed || !r.cell.try_borrow() {
		panic("dup")
	}
	return a.mkrc(&a.ents[r.idx])
}

func (a *Mruarena_t[T]) Dealloc(k lock.Kctx_i, r *Rc_t[T]) {
	r.consume()
	a.Acquire(k)
	defer a.Release(k)
	if r.cell.release() {
		finalize(k, a, &r.cell.data)
		r.cell.unuse()
		e := &a.ents[r.idx]
		e.link.Remove()
		a.head.Push_front(&e.link)
	}
}

func (a *Mruarena_t[T]) Reacquire_after(k lock.Kctx_i, f func()) {
	a.Release(k)
	f()
	a.Acquire(k)
}

// calls f on each cell's data from the most to the least recently released,
// with the arena lock held, until f returns false.
func (a *Mruarena_t[T]) Iter(k lock.Kctx_i, f func(data *T, refcnt int) bool) {
	a.Acquire(k)
	defer a.Release(k)
	a.head.Iter(func(l *list.Listentry_t) bool {
		e := a.ent(l)
		return f(&e.cell.data, e.cell.refcnt)
	})
}
