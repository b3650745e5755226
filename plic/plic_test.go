package plic

import "testing"
import "time"

import "rv6/hw"
import "rv6/riscv"

func TestClaimComplete(t *testing.T) {
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: 2, Ramsize: 1 << 20,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	p := MkPlic(m.Bus)
	p.Init()
	p.Inithart(0)
	m.Plic.Irq(riscv.UART0_IRQ)
	if m.Harts[0].Pending()&hw.SEIP == 0 {
		t.Fatalf("enabled hart not interrupted")
	}
	if m.Harts[1].Pending()&hw.SEIP != 0 {
		t.Fatalf("disabled hart interrupted")
	}
	irq := p.Claim(0)
	if irq != riscv.UART0_IRQ {
		t.Fatalf("claimed %d", irq)
	}
	m.Plic.Irq(riscv.UART0_IRQ)
	if p.Claim(0) != 0 {
		t.Fatalf("claimed an irq in service")
	}
	p.Complete(0, irq)
	if p.Claim(0) != riscv.UART0_IRQ {
		t.Fatalf("re-raised irq lost")
	}
}
