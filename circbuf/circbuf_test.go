package circbuf

import "testing"
import "time"

import "rv6/cpu"
import "rv6/hw"
import "rv6/mem"
import "rv6/riscv"
import "rv6/vm"

func mkcb(t *testing.T, sz int) (*Circbuf_t, *mem.Physmem_t, *cpu.Cpu_t) {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: 1, Ramsize: 16 * mem.PGSIZE,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	c := cpu.MkCpus(m)[0]
	phys := mem.Phys_init(m.Ram, mem.Pa_t(riscv.KERNBASE+mem.PGSIZE))
	phys.Freerange(c)
	cb := &Circbuf_t{}
	cb.Cb_init(sz, phys)
	return cb, phys, c
}

func TestWrap(t *testing.T) {
	cb, phys, c := mkcb(t, 8)
	before := phys.Pgcount(c)
	n, err := cb.Copyin(c, vm.Mkfakeubuf([]uint8("abcdef")))
	if err != 0 || n != 6 {
		t.Fatalf("copyin %v %v", n, err)
	}
	if phys.Pgcount(c) != before-1 {
		t.Fatalf("page not allocated lazily")
	}
	out := make([]uint8, 4)
	n, _ = cb.Copyout(c, vm.Mkfakeubuf(out))
	if n != 4 || string(out) != "abcd" {
		t.Fatalf("copyout %q", out[:n])
	}
	// wraps around the end of the buffer
	n, _ = cb.Copyin(c, vm.Mkfakeubuf([]uint8("ghijklmnop")))
	if n != 6 || !cb.Full() {
		t.Fatalf("copyin %v full %v", n, cb.Full())
	}
	out = make([]uint8, 16)
	n, _ = cb.Copyout(c, vm.Mkfakeubuf(out))
	if string(out[:n]) != "efghijkl" {
		t.Fatalf("got %q", out[:n])
	}
	if !cb.Empty() || cb.Left() != 8 {
		t.Fatalf("not empty")
	}
	cb.Cb_release(c)
	if phys.Pgcount(c) != before {
		t.Fatalf("page leaked")
	}
}

func TestCopyoutMax(t *testing.T) {
	cb, _, c := mkcb(t, 16)
	cb.Copyin(c, vm.Mkfakeubuf([]uint8("0123456789")))
	out := make([]uint8, 16)
	n, _ := cb.Copyout_n(c, vm.Mkfakeubuf(out), 3)
	if n != 3 || cb.Used() != 7 {
		t.Fatalf("copyout_n %v used %v", n, cb.Used())
	}
	if !cb.Putc('x') {
		t.Fatalf("putc")
	}
	b, ok := cb.Getc()
	if !ok || b != '3' {
		t.Fatalf("getc %c", b)
	}
	cb.Cb_release(c)
}
