package cpu

import "testing"
import "time"

import "rv6/hw"

func mkcpus(t *testing.T, n int) (*hw.Machine_t, Cpus_t) {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: n, Ramsize: 1 << 20,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m, MkCpus(m)
}

func TestPushPop(t *testing.T) {
	_, cs := mkcpus(t, 1)
	c := cs[0]
	c.Intr_on()
	c.Push_off()
	c.Push_off()
	if c.Intr_get() || c.Noff != 2 {
		t.Fatalf("push_off")
	}
	c.Pop_off()
	if c.Intr_get() {
		t.Fatalf("enabled too early")
	}
	c.Pop_off()
	if !c.Intr_get() {
		t.Fatalf("not restored")
	}

	c.Intr_off()
	c.Push_off()
	c.Pop_off()
	if c.Intr_get() {
		t.Fatalf("push/pop enabled interrupts")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("unbalanced pop_off did not panic")
		}
	}()
	c.Pop_off()
}

func TestPoll(t *testing.T) {
	_, cs := mkcpus(t, 1)
	c := cs[0]
	n := 0
	c.Trap = func(c *Cpu_t) {
		if c.Intr_get() {
			t.Errorf("trap with interrupts on")
		}
		n++
		c.Hart.Clear(hw.STIP)
	}
	// off before push_off, so pop_off leaves them off
	c.Intr_off()
	c.Push_off()
	c.Hart.Raise(hw.STIP)
	c.Pop_off()
	if n != 0 || c.Intr_get() {
		t.Fatalf("pop_off with intena false took %d traps", n)
	}
	c.Intr_on()
	if n != 1 {
		t.Fatalf("traps %d", n)
	}
	// on before push_off, so the last pop_off takes the pending trap
	c.Push_off()
	c.Push_off()
	c.Hart.Raise(hw.STIP)
	c.Pop_off()
	if n != 1 {
		t.Fatalf("trap before the last pop_off")
	}
	c.Pop_off()
	if n != 2 || !c.Intr_get() {
		t.Fatalf("traps %d", n)
	}
}

func TestSwtch(t *testing.T) {
	_, cs := mkcpus(t, 1)
	c := cs[0]
	var a Context_t
	trace := make(chan int, 10)
	a.Init(0, func() {
		if a.Cpu() != c {
			t.Errorf("wrong tp")
		}
		trace <- 1
		Swtch(&a, &c.Context)
		trace <- 3
		Swtch(&a, &c.Context)
		t.Errorf("retired context resumed")
	})
	Swtch(&c.Context, &a)
	trace <- 2
	Swtch(&c.Context, &a)
	a.Retire()
	close(trace)
	i := 1
	for v := range trace {
		if v != i {
			t.Fatalf("order %d want %d", v, i)
		}
		i++
	}
}
