package vm

import "bytes"
import "testing"
import "time"

import "rv6/cpu"
import "rv6/hw"
import "rv6/mem"
import "rv6/riscv"

type env_t struct {
	phys  *mem.Physmem_t
	c     *cpu.Cpu_t
	tramp mem.Pa_t
}

func mkenv(t *testing.T, npg int) *env_t {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: 1, Ramsize: npg * riscv.PGSIZE,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	e := &env_t{c: cpu.MkCpus(m)[0]}
	e.phys = mem.Phys_init(m.Ram, mem.Pa_t(riscv.KERNBASE))
	e.tramp = e.phys.Boot_alloc(1)
	e.phys.Freerange(e.c)
	return e
}

func (e *env_t) mkum(t *testing.T) (*Usermem_t, mem.Pa_t) {
	tf, ok := e.phys.Zalloc(e.c)
	if !ok {
		t.Fatal("no frame for trap frame")
	}
	um, err := Mkusermem(e.c, e.phys, e.tramp, tf)
	if err != 0 {
		t.Fatalf("mkusermem: %v", err)
	}
	return um, tf
}

func TestMapWalk(t *testing.T) {
	e := mkenv(t, 64)
	pt, ok := Mkpagetable(e.c, e.phys)
	if !ok {
		t.Fatal("mkpagetable")
	}
	pa, _ := e.phys.Zalloc(e.c)
	va := uint64(0x40201000)
	perm := riscv.PTE_R | riscv.PTE_W | riscv.PTE_U
	if err := pt.Mappages(e.c, va, riscv.PGSIZE, pa, perm); err != 0 {
		t.Fatalf("map: %v", err)
	}
	pte, ok := pt.Walk(e.c, va, false)
	if !ok || mem.Pa_t(riscv.PTE2PA(*pte)) != pa ||
		riscv.PTE_FLAGS(*pte) != perm|riscv.PTE_V {
		t.Fatalf("walk after map: %#x", *pte)
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("remap did not panic")
			}
		}()
		pt.Mappages(e.c, va, riscv.PGSIZE, pa, perm)
	}()
	pt.Unmap(e.c, va, 1, true)
	if pte, ok := pt.Walk(e.c, va, false); ok && pte.Valid() {
		t.Fatalf("still mapped after unmap")
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("unmap of absent page did not panic")
			}
		}()
		pt.Unmap(e.c, va, 1, false)
	}()
	pt.Freewalk(e.c)
}

func TestWalkMaxva(t *testing.T) {
	e := mkenv(t, 16)
	um, _ := e.mkum(t)
	if _, ok := um.Pagetable().Walkaddr(riscv.MAXVA); ok {
		t.Fatalf("walkaddr past MAXVA")
	}
	if err := um.Copyout(riscv.MAXVA-1, []uint8{1, 2}); err == 0 {
		t.Fatalf("copyout past MAXVA")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("walk past MAXVA did not panic")
		}
	}()
	um.Pagetable().Walk(e.c, riscv.MAXVA, false)
}

func TestCopyRoundTrip(t *testing.T) {
	e := mkenv(t, 64)
	um, _ := e.mkum(t)
	if err := um.Grow(e.c, 3*riscv.PGSIZE, PTE_URWX); err != 0 {
		t.Fatalf("grow: %v", err)
	}
	src := make([]uint8, riscv.PGSIZE)
	for i := range src {
		src[i] = uint8(i * 7)
	}
	// straddles a page boundary
	va := uint64(riscv.PGSIZE + 100)
	if err := um.Copyout(va, src); err != 0 {
		t.Fatalf("copyout: %v", err)
	}
	dst := make([]uint8, len(src))
	if err := um.Copyin(dst, va); err != 0 {
		t.Fatalf("copyin: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Fatalf("round trip mismatch")
	}
	if err := um.Copyin(dst, 3*riscv.PGSIZE-10); err == 0 {
		t.Fatalf("copyin past end succeeded")
	}
	um.Copyout(0, []uint8("hello\x00world"))
	s, err := um.Copyinstr(0, 64)
	if err != 0 || string(s) != "hello" {
		t.Fatalf("copyinstr %q %v", s, err)
	}
	if _, err := um.Copyinstr(0, 3); err == 0 {
		t.Fatalf("copyinstr did not hit max")
	}
	um.Clear(0)
	if err := um.Copyin(dst[:1], 0); err == 0 {
		t.Fatalf("copyin from guard page")
	}
	um.Free(e.c)
}

func TestGrowRollback(t *testing.T) {
	e := mkenv(t, 24)
	um, _ := e.mkum(t)
	before := e.phys.Pgcount(e.c)
	if err := um.Grow(e.c, 100*riscv.PGSIZE, PTE_URWX); err == 0 {
		t.Fatalf("grow beyond memory succeeded")
	}
	if um.Size() != 0 {
		t.Fatalf("size changed to %d", um.Size())
	}
	// intermediate tables allocated on the way stay with the page table.
	after := e.phys.Pgcount(e.c)
	if before-after > 2 {
		t.Fatalf("leaked %d frames", before-after)
	}
	um.Free(e.c)
}

func TestCloneIsolated(t *testing.T) {
	e := mkenv(t, 64)
	um, _ := e.mkum(t)
	um.Grow(e.c, 2*riscv.PGSIZE, PTE_URWX)
	um.Copyout(10, []uint8{42})
	tf2, _ := e.phys.Zalloc(e.c)
	child, err := um.Clone(e.c, tf2)
	if err != 0 {
		t.Fatalf("clone: %v", err)
	}
	um.Copyout(10, []uint8{43})
	var b [1]uint8
	child.Copyin(b[:], 10)
	if b[0] != 42 {
		t.Fatalf("child sees parent's write: %d", b[0])
	}
	if child.Size() != um.Size() {
		t.Fatalf("sizes differ")
	}
	free := e.phys.Pgcount(e.c)
	child.Free(e.c)
	if e.phys.Pgcount(e.c) <= free {
		t.Fatalf("child free released nothing")
	}
	um.Free(e.c)
}

func TestSbrkShrink(t *testing.T) {
	e := mkenv(t, 64)
	um, _ := e.mkum(t)
	old, err := um.Sbrk(e.c, 5000)
	if err != 0 || old != 0 || um.Size() != 5000 {
		t.Fatalf("sbrk grow")
	}
	free := e.phys.Pgcount(e.c)
	um.Sbrk(e.c, -5000+100)
	if um.Size() != 100 || e.phys.Pgcount(e.c) != free+1 {
		t.Fatalf("sbrk shrink: size %d", um.Size())
	}
	if _, err := um.Sbrk(e.c, -200); err == 0 {
		t.Fatalf("shrink below zero")
	}
	um.Free(e.c)
}

func TestUserbuf(t *testing.T) {
	e := mkenv(t, 64)
	um, _ := e.mkum(t)
	um.Grow(e.c, 2*riscv.PGSIZE, PTE_URWX)
	ub := um.Mkuserbuf(riscv.PGSIZE-3, 6)
	n, err := ub.Uiowrite([]uint8("abcdefgh"))
	if n != 6 || err != 0 || ub.Remain() != 0 {
		t.Fatalf("uiowrite %d %v", n, err)
	}
	fb := Mkfakeubuf(make([]uint8, 6))
	um.Mkuserbuf(riscv.PGSIZE-3, 6).Uioread(fb.fbuf)
	if string(fb.fbuf) != "abcdef" {
		t.Fatalf("read back %q", fb.fbuf)
	}
	um.Free(e.c)
}
