// Package plic programs the RISC-V platform-level interrupt controller.
package plic

import "rv6/hw"
import "rv6/riscv"

type Plic_t struct {
	bus *hw.Bus_t
}

func MkPlic(bus *hw.Bus_t) *Plic_t {
	return &Plic_t{bus: bus}
}

// set desired IRQ priorities non-zero (otherwise disabled).
func (p *Plic_t) Init() {
	p.bus.Write32(riscv.PLIC+riscv.UART0_IRQ*4, 1)
	p.bus.Write32(riscv.PLIC+riscv.VIRTIO0_IRQ*4, 1)
}

// enables the uart and virtio interrupts for hart's S-mode and sets its
// priority threshold to 0.
func (p *Plic_t) Inithart(hart int) {
	p.bus.Write32(riscv.PLIC_SENABLE(hart),
		1<<riscv.UART0_IRQ|1<<riscv.VIRTIO0_IRQ)
	p.bus.Write32(riscv.PLIC_SPRIORITY(hart), 0)
}

// asks the PLIC what interrupt we should serve. 0 means none.
func (p *Plic_t) Claim(hart int) int {
	return int(p.bus.Read32(riscv.PLIC_SCLAIM(hart)))
}

// tells the PLIC we've served this IRQ.
func (p *Plic_t) Complete(hart, irq int) {
	p.bus.Write32(riscv.PLIC_SCLAIM(hart), uint32(irq))
}
