package arena

import "sync"
import "testing"
import "time"

import "rv6/cpu"
import "rv6/hw"
import "rv6/lock"

type kctx_t struct {
	c *cpu.Cpu_t
}

func (k *kctx_t) Cpu() *cpu.Cpu_t                                   { return k.c }
func (k *kctx_t) Sleep(wc *lock.Waitchannel_t, lk *lock.Spinlock_t) { panic("sleep") }
func (k *kctx_t) Wakeup(wc *lock.Waitchannel_t)                     {}
func (k *kctx_t) Killed() bool                                      { return false }
func (k *kctx_t) Pid() int                                          { return 1 }

func mkkctx(t *testing.T, n int) []*kctx_t {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: n, Ramsize: 1 << 20,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	var ret []*kctx_t
	for _, c := range cpu.MkCpus(m) {
		ret = append(ret, &kctx_t{c})
	}
	return ret
}

type blk_t struct {
	bno   int
	fins  *int
	reacq bool
}

func (b *blk_t) Finalize(k lock.Kctx_i, g Guard_i) {
	if b.fins != nil {
		*b.fins++
	}
	if b.reacq {
		g.Reacquire_after(k, func() {})
	}
}

func match(bno int) func(*blk_t) bool {
	return func(b *blk_t) bool { return b.bno == bno }
}

func set(bno int, fins *int) func(*blk_t) {
	return func(b *blk_t) { b.bno = bno; b.fins = fins }
}

func TestArrayFindOrAlloc(t *testing.T) {
	k := mkkctx(t, 1)[0]
	a := MkArrayarena[blk_t]("arr", 3)
	r1, ok := a.Find_or_alloc(k, match(5), set(5, nil))
	if !ok || r1.idx != 0 {
		t.Fatalf("first alloc")
	}
	r2, ok := a.Find_or_alloc(k, match(5), set(99, nil))
	if !ok || !r2.Same(r1) || r2.Get().bno != 5 {
		t.Fatalf("match did not find the existing cell")
	}
	if a.cells[0].Refcnt() != 2 {
		t.Fatalf("refcnt %d", a.cells[0].Refcnt())
	}
	r3, _ := a.Alloc(k, set(6, nil))
	r4, _ := a.Alloc(k, set(7, nil))
	if r3.idx != 1 || r4.idx != 2 {
		t.Fatalf("not first-unused")
	}
	if _, ok := a.Alloc(k, set(8, nil)); ok {
		t.Fatalf("alloc from full arena")
	}
	r3.Free(k)
	r5, ok := a.Find_or_alloc(k, match(9), set(9, nil))
	if !ok || r5.idx != 1 {
		t.Fatalf("did not reuse freed cell")
	}
	for _, r := range []*Rc_t[blk_t]{r1, r2, r4, r5} {
		r.Free(k)
	}
	if a.Nused(k) != 0 {
		t.Fatalf("leaked cells")
	}
	// cell 1 still holds bno 9, but only borrowed cells match
	inited := false
	r6, ok := a.Find_or_alloc(k, match(9), func(b *blk_t) {
		inited = true
		b.bno = 9
	})
	if !ok || !inited || r6.idx != 0 {
		t.Fatalf("matched an unused cell")
	}
	r6.Free(k)
}

func TestDoubleFree(t *testing.T) {
	k := mkkctx(t, 1)[0]
	a := MkArrayarena[blk_t]("arr", 1)
	r, _ := a.Alloc(k, set(1, nil))
	r.Free(k)
	defer func() {
		if recover() == nil {
			t.Fatalf("double free did not panic")
		}
	}()
	r.Free(k)
}

func TestFinalize(t *testing.T) {
	k := mkkctx(t, 1)[0]
	a := MkMruarena[blk_t]("mru", 2)
	n := 0
	r, _ := a.Alloc(k, func(b *blk_t) { b.bno = 1; b.fins = &n; b.reacq = true })
	d := r.Dup(k)
	r.Free(k)
	if n != 0 {
		t.Fatalf("finalized with a live reference")
	}
	d.Free(k)
	if n != 1 {
		t.Fatalf("finalize count %d", n)
	}
	if a.Holding(k) {
		t.Fatalf("arena lock leaked")
	}
}

// cells released in order 1..n are reclaimed oldest first.
func TestMruEviction(t *testing.T) {
	k := mkkctx(t, 1)[0]
	const n = 4
	a := MkMruarena[blk_t]("mru", n)
	for b := 1; b <= n; b++ {
		r, ok := a.Find_or_alloc(k, match(b), set(b, nil))
		if !ok {
			t.Fatalf("alloc %d", b)
		}
		r.Free(k)
	}
	r, _ := a.Find_or_alloc(k, match(n+1), set(n+1, nil))
	r.Free(k)
	present := map[int]bool{}
	a.Iter(k, func(b *blk_t, refcnt int) bool {
		present[b.bno] = true
		return true
	})
	if present[1] || !present[2] || !present[n+1] {
		t.Fatalf("evicted wrong cell: %v", present)
	}
	hit := true
	r, _ = a.Find_or_alloc(k, match(2), func(b *blk_t) { hit = false })
	if !hit || r.Get().bno != 2 {
		t.Fatalf("block 2 was not cached")
	}
	r.Free(k)
}

func TestMruFull(t *testing.T) {
	k := mkkctx(t, 1)[0]
	a := MkMruarena[blk_t]("mru", 2)
	r1, _ := a.Alloc(k, set(1, nil))
	r2, _ := a.Alloc(k, set(2, nil))
	if _, ok := a.Find_or_alloc(k, match(3), set(3, nil)); ok {
		t.Fatalf("alloc from full arena")
	}
	r1.Free(k)
	r2.Free(k)
}

func TestConcurrent(t *testing.T) {
	ks := mkkctx(t, 4)
	a := MkMruarena[blk_t]("mru", 8)
	var wg sync.WaitGroup
	for i, k := range ks {
		wg.Add(1)
		go func(i int, k *kctx_t) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b := (i + j) % 6
				r, ok := a.Find_or_alloc(k, match(b), set(b, nil))
				if !ok {
					t.Errorf("arena exhausted")
					return
				}
				if r.Get().bno != b {
					t.Errorf("got %d want %d", r.Get().bno, b)
				}
				r.Free(k)
			}
		}(i, k)
	}
	wg.Wait()
}
