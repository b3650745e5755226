package lock

import "rv6/cpu"

// data whose exclusive access is granted by holding a spinlock that lives
// elsewhere, such as every process's parent pointer under the wait lock.
type Remotelock_t[T any] struct {
	owner *Spinlock_t
	data  T
}

func (r *Remotelock_t[T]) Init(owner *Spinlock_t, v T) {
	r.owner = owner
	r.data = v
}

// the protected data. the owner lock must be held by this hart.
func (r *Remotelock_t[T]) Get(h cpu.Hartctx_i) *T {
	if !r.owner.Holding(h) {
		panic("remote lock not held: " + r.owner.name)
	}
	return &r.data
}

// access when exclusion is known by other means, such as a process that
// is not yet visible to other harts.
func (r *Remotelock_t[T]) Get_unchecked() *T {
	return &r.data
}
