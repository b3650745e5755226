// Package lockdep records the order in which lock classes are acquired and
// reports orders that could deadlock.
//
// Each node of the graph is a lock class and an edge a->b means some hart
// acquired a lock of class b while holding one of class a. A cycle in the
// graph is a potential deadlock.
package lockdep

import "fmt"
import "io"
import "sort"
import "sync"

import "github.com/aclements/go-moremath/graph"
import "github.com/aclements/go-moremath/graph/graphalg"

type Lockdep_t struct {
	sync.Mutex
	ids    map[string]int
	labels []string
	to     [][]int
	seen   map[[2]int]bool
}

var _ graph.Graph = &Lockdep_t{}

func MkLockdep() *Lockdep_t {
	return &Lockdep_t{ids: make(map[string]int), seen: make(map[[2]int]bool)}
}

func (l *Lockdep_t) NumNodes() int {
	return len(l.labels)
}

func (l *Lockdep_t) Out(i int) []int {
	return l.to[i]
}

func (l *Lockdep_t) class(name string) int {
	if id, ok := l.ids[name]; ok {
		return id
	}
	id := len(l.labels)
	l.ids[name] = id
	l.labels = append(l.labels, name)
	l.to = append(l.to, nil)
	return id
}

// records that class next was acquired while each of held was held.
func (l *Lockdep_t) Acquire(held []string, next string) {
	l.Lock()
	defer l.Unlock()
	n := l.class(next)
	for _, h := range held {
		if h == next {
			// classes such as "proc" have many instances that
			// are never nested
			continue
		}
		e := [2]int{l.class(h), n}
		if !l.seen[e] {
			l.seen[e] = true
			l.to[e[0]] = append(l.to[e[0]], n)
		}
	}
}

// returns the lock classes of each cycle in the order graph.
func (l *Lockdep_t) Cycles() [][]string {
	l.Lock()
	defer l.Unlock()
	scc := graphalg.SCC(l, graphalg.SCCSubnodeComponent)
	var ret [][]string
	for cid := 0; cid < scc.NumNodes(); cid++ {
		nids := scc.Subnodes(cid)
		if len(nids) <= 1 {
			continue
		}
		names := make([]string, 0, len(nids))
		for _, nid := range nids {
			names = append(names, l.labels[nid])
		}
		sort.Strings(names)
		ret = append(ret, names)
	}
	return ret
}

// writes every recorded order, classes involved in a cycle first.
func (l *Lockdep_t) Report(w io.Writer) {
	cyc := l.Cycles()
	l.Lock()
	defer l.Unlock()
	for _, c := range cyc {
		fmt.Fprintf(w, "lock cycle: %v\n", c)
	}
	marks := graphalg.NewNodeMarks()
	var visit func(int)
	visit = func(n int) {
		marks.Mark(n)
		for _, s := range l.to[n] {
			fmt.Fprintf(w, "%s -> %s\n", l.labels[n], l.labels[s])
			if !marks.Test(s) {
				visit(s)
			}
		}
	}
	for n := range l.labels {
		if !marks.Test(n) {
			visit(n)
		}
	}
}
