package hw

import "fmt"
import "io"
import "os"
import "time"

import "rv6/riscv"

type Mconfig_t struct {
	Ncpu    int
	Ramsize int
	Disk    Backing_i
	Console io.Writer
	Tick    time.Duration
}

// the whole simulated board.
type Machine_t struct {
	Ram    *Ram_t
	Bus    *Bus_t
	Harts  []*Hart_t
	Plic   *Plic_t
	Clint  *Clint_t
	Uart   *Uart_t
	Virtio *Virtioblk_t
	stop   chan struct{}
	up     bool
}

func MkMachine(c Mconfig_t) (*Machine_t, error) {
	if c.Ncpu <= 0 {
		return nil, fmt.Errorf("bad cpu count %d", c.Ncpu)
	}
	if c.Ramsize == 0 {
		c.Ramsize = int(riscv.PHYSTOP - riscv.KERNBASE)
	}
	if c.Tick == 0 {
		c.Tick = 10 * time.Millisecond
	}
	if c.Console == nil {
		c.Console = os.Stdout
	}
	ram, err := MkRam(riscv.KERNBASE, c.Ramsize)
	if err != nil {
		return nil, err
	}
	m := &Machine_t{Ram: ram, stop: make(chan struct{})}
	m.Harts = make([]*Hart_t, c.Ncpu)
	for i := range m.Harts {
		m.Harts[i] = mkHart(i, m.stop)
	}
	m.Plic = mkPlic(m.Harts)
	m.Clint = mkClint(m.Harts, c.Tick)
	m.Uart = mkUart(c.Console, func() { m.Plic.Irq(riscv.UART0_IRQ) })
	m.Virtio = mkVirtioblk(ram, c.Disk, func() { m.Plic.Irq(riscv.VIRTIO0_IRQ) })

	m.Bus = &Bus_t{}
	m.Bus.Attach(riscv.CLINT, 0x10000, m.Clint)
	m.Bus.Attach(riscv.PLIC, 0x400000, m.Plic)
	m.Bus.Attach(riscv.UART0, riscv.PGSIZE, m.Uart)
	m.Bus.Attach(riscv.VIRTIO0, riscv.PGSIZE, m.Virtio)
	return m, nil
}

// starts the timer and the disk.
func (m *Machine_t) Start() {
	if m.up {
		panic("double start")
	}
	m.up = true
	m.Clint.start()
	m.Virtio.start()
}

// stops the devices and wakes every hart waiting for interrupt. the harts'
// Wfi return false from then on.
func (m *Machine_t) Stop() {
	if !m.up {
		return
	}
	m.up = false
	close(m.stop)
	m.Clint.halt()
	m.Virtio.halt()
}

func (m *Machine_t) Stopped() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// releases the machine's memory. the machine must be stopped.
func (m *Machine_t) Close() error {
	if m.up {
		panic("close running machine")
	}
	return m.Ram.Close()
}
