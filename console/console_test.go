package console

import "bytes"
import "testing"

import "rv6/defs"
import "rv6/hw"
import "rv6/lock"
import "rv6/lock/locktest"
import "rv6/mem"
import "rv6/riscv"
import "rv6/vm"

func mkcons(t *testing.T) (*Console_t, *hw.Machine_t, *locktest.Ctx_t, *bytes.Buffer) {
	out := &bytes.Buffer{}
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: 1, Ramsize: 8 * mem.PGSIZE,
		Console: out})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	k := locktest.Mkctxs(m)[0]
	phys := mem.Phys_init(m.Ram, mem.Pa_t(riscv.KERNBASE+mem.PGSIZE))
	phys.Freerange(k)
	cons, e := MkConsole(k, m.Bus, phys)
	if e != 0 {
		t.Fatalf("mkconsole %v", e)
	}
	return cons, m, k, out
}

func typein(cons *Console_t, m *hw.Machine_t, k lock.Kctx_i, s string) {
	m.Uart.Input([]uint8(s))
	cons.Intr(k)
}

func readline(t *testing.T, cons *Console_t, k lock.Kctx_i) string {
	buf := make([]uint8, 64)
	n, err := cons.Read(k, vm.Mkfakeubuf(buf))
	if err != 0 {
		t.Fatalf("read %v", err)
	}
	return string(buf[:n])
}

func TestLineEditing(t *testing.T) {
	cons, m, k, out := mkcons(t)
	typein(cons, m, k, "helo\x7flo\r")
	if got := readline(t, cons, k); got != "hello\n" {
		t.Fatalf("got %q", got)
	}
	typein(cons, m, k, "junk\x15ok\n")
	if got := readline(t, cons, k); got != "ok\n" {
		t.Fatalf("after ^U got %q", got)
	}
	if !bytes.HasPrefix(out.Bytes(), []uint8("helo\b \blo\n")) {
		t.Fatalf("no echo: %q", out.Bytes())
	}
}

func TestEOF(t *testing.T) {
	cons, m, k, _ := mkcons(t)
	typein(cons, m, k, "ab\x04")
	if got := readline(t, cons, k); got != "ab" {
		t.Fatalf("got %q", got)
	}
	if got := readline(t, cons, k); got != "" {
		t.Fatalf("want eof, got %q", got)
	}
}

func TestWakeReader(t *testing.T) {
	cons, m, k, _ := mkcons(t)
	res := make(chan string)
	go func() {
		buf := make([]uint8, 64)
		n, _ := cons.Read(k, vm.Mkfakeubuf(buf))
		res <- string(buf[:n])
	}()
	for k.Nsleeping(&cons.rwc) == 0 {
	}
	typein(cons, m, k, "x\n")
	if got := <-res; got != "x\n" {
		t.Fatalf("got %q", got)
	}
}

func TestProcdumpAndWrite(t *testing.T) {
	cons, m, k, out := mkcons(t)
	dumped := 0
	cons.Procdump = func(lock.Kctx_i) { dumped++ }
	typein(cons, m, k, "\x10")
	if dumped != 1 {
		t.Fatalf("^P not handled")
	}
	n, err := cons.Write(k, vm.Mkfakeubuf([]uint8("out")))
	if n != 3 || err != 0 || !bytes.HasSuffix(out.Bytes(), []uint8("out")) {
		t.Fatalf("write %v %v %q", n, err, out.Bytes())
	}
	k.Kill()
	if _, err := cons.Read(k, vm.Mkfakeubuf(make([]uint8, 4))); err != -defs.EINTR {
		t.Fatalf("killed read: %v", err)
	}
}
