// Package list is an intrusive doubly-linked list. Nodes are embedded in the
// objects they link and must not move while linked.
package list

import "unsafe"

type Listentry_t struct {
	prev *Listentry_t
	next *Listentry_t
}

// makes e an unlinked node, or an empty list when e is a head.
func (e *Listentry_t) Init() {
	e.prev = e
	e.next = e
}

func (e *Listentry_t) Unlinked() bool {
	return e.next == e && e.prev == e
}

// the head is empty.
func (e *Listentry_t) Empty() bool {
	return e.next == e
}

func (e *Listentry_t) Next() *Listentry_t {
	return e.next
}

func (e *Listentry_t) Prev() *Listentry_t {
	return e.prev
}

func (e *Listentry_t) insert(prev, next *Listentry_t) {
	if !e.Unlinked() {
		panic("insert of linked node")
	}
	e.prev = prev
	e.next = next
	prev.next = e
	next.prev = e
}

// links n right after head.
func (head *Listentry_t) Push_front(n *Listentry_t) {
	n.insert(head, head.next)
}

// links n right before head.
func (head *Listentry_t) Push_back(n *Listentry_t) {
	n.insert(head.prev, head)
}

func (e *Listentry_t) Remove() {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.Init()
}

// panics if e is still linked. a node must be unlinked before its owner
// is reused or dropped.
func (e *Listentry_t) Check_unlinked() {
	if !e.Unlinked() {
		panic("drop of linked node")
	}
}

// recovers a pointer to the object of type T whose list node lives off
// bytes into it.
func Container[T any](e *Listentry_t, off uintptr) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(e), -int(off)))
}

// calls f on each node from front to back until f returns false. f must not
// unlink nodes other than the one it is given.
func (head *Listentry_t) Iter(f func(*Listentry_t) bool) {
	for e := head.next; e != head; {
		n := e.next
		if !f(e) {
			return
		}
		e = n
	}
}

// like Iter from back to front.
func (head *Listentry_t) Iter_back(f func(*Listentry_t) bool) {
	for e := head.prev; e != head; {
		p := e.prev
		if !f(e) {
			return
		}
		e = p
	}
}

func (head *Listentry_t) Len() int {
	n := 0
	head.Iter(func(*Listentry_t) bool {
		n++
		return true
	})
	return n
}
