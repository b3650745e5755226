package mem

import "testing"
import "time"

import "rv6/cpu"
import "rv6/hw"
import "rv6/riscv"

func mkphys(t *testing.T, npg int) (*Physmem_t, *cpu.Cpu_t) {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: 1, Ramsize: npg * PGSIZE,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	c := cpu.MkCpus(m)[0]
	phys := Phys_init(m.Ram, Pa_t(riscv.KERNBASE+2*PGSIZE+10))
	return phys, c
}

func TestAllocRange(t *testing.T) {
	phys, c := mkphys(t, 32)
	carve := phys.Boot_alloc(2)
	if carve != Pa_t(riscv.KERNBASE+3*PGSIZE) {
		t.Fatalf("carve at %#x", carve)
	}
	phys.Freerange(c)
	n := phys.Pgcount(c)
	if n != 32-5 {
		t.Fatalf("free frames %d", n)
	}
	seen := map[Pa_t]bool{}
	for {
		pa, ok := phys.Alloc(c)
		if !ok {
			break
		}
		if pa&PGOFFSET != 0 || pa < phys.End() || pa >= phys.Top() {
			t.Fatalf("bad frame %#x", pa)
		}
		if seen[pa] {
			t.Fatalf("frame %#x handed out twice", pa)
		}
		seen[pa] = true
	}
	if len(seen) != n {
		t.Fatalf("allocated %d of %d", len(seen), n)
	}
}

func TestLIFO(t *testing.T) {
	phys, c := mkphys(t, 16)
	phys.Freerange(c)
	a, _ := phys.Alloc(c)
	phys.Free(c, a)
	b, _ := phys.Alloc(c)
	if a != b {
		t.Fatalf("alloc after free gave %#x, want %#x", b, a)
	}
	z, _ := phys.Zalloc(c)
	for _, v := range Pg2bytes(phys.Dmap(z)) {
		if v != 0 {
			t.Fatalf("zalloc not zero")
		}
	}
}

func TestBadFree(t *testing.T) {
	phys, c := mkphys(t, 16)
	phys.Freerange(c)
	for _, pa := range []Pa_t{phys.End() + 8, phys.End() - PGSIZE, phys.Top()} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("free of %#x did not panic", pa)
				}
			}()
			phys.Free(c, pa)
		}()
	}
}

func TestDoubleFree(t *testing.T) {
	phys, c := mkphys(t, 16)
	phys.Freerange(c)
	a, _ := phys.Alloc(c)
	phys.Free(c, a)
	n := phys.Pgcount(c)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("double free of %#x did not panic", a)
			}
		}()
		phys.Free(c, a)
	}()
	if phys.Pgcount(c) != n {
		t.Fatalf("free list grew to %d", phys.Pgcount(c))
	}
	if b, _ := phys.Alloc(c); b != a {
		t.Fatalf("alloc gave %#x, want %#x", b, a)
	}
}
