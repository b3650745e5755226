package hw

import "io"
import "sync"

// 16550a registers, as offsets from UART0
const (
	UART_RHR = 0 // receive holding register (input bytes)
	UART_THR = 0 // transmit holding register (output bytes)
	UART_IER = 1 // interrupt enable register
	UART_FCR = 2 // FIFO control register
	UART_ISR = 2 // interrupt status register
	UART_LCR = 3 // line control register
	UART_LSR = 5 // line status register

	UART_IER_RX = 1 << 0
	UART_IER_TX = 1 << 1
	UART_LSR_RX = 1 << 0 // input is waiting to be read from RHR
	UART_LSR_TX = 1 << 5 // THR can accept another character to send
)

// a UART whose transmitter writes to an io.Writer and whose receiver is fed
// by Input. registers are one byte apart.
type Uart_t struct {
	sync.Mutex
	out io.Writer
	in  []uint8
	ier uint32
	lcr uint32
	irq func()
}

func mkUart(out io.Writer, irq func()) *Uart_t {
	return &Uart_t{out: out, irq: irq}
}

// queues bytes typed on the console.
func (u *Uart_t) Input(b []uint8) {
	u.Lock()
	u.in = append(u.in, b...)
	en := u.ier&UART_IER_RX != 0
	u.Unlock()
	if en && len(b) > 0 {
		u.irq()
	}
}

func (u *Uart_t) reg(off uint64) uint64 {
	return off
}

func (u *Uart_t) Read32(off uint64) uint32 {
	u.Lock()
	defer u.Unlock()
	switch u.reg(off) {
	case UART_RHR:
		if len(u.in) == 0 {
			return 0
		}
		c := u.in[0]
		u.in = u.in[1:]
		return uint32(c)
	case UART_IER:
		return u.ier
	case UART_LCR:
		return u.lcr
	case UART_LSR:
		lsr := uint32(UART_LSR_TX)
		if len(u.in) > 0 {
			lsr |= UART_LSR_RX
		}
		return lsr
	}
	return 0
}

func (u *Uart_t) Write32(off uint64, v uint32) {
	u.Lock()
	switch u.reg(off) {
	case UART_THR:
		if u.out != nil {
			u.out.Write([]uint8{uint8(v)})
		}
	case UART_IER:
		u.ier = v
	case UART_LCR:
		u.lcr = v
	}
	pend := u.ier&UART_IER_RX != 0 && len(u.in) > 0
	u.Unlock()
	if pend {
		u.irq()
	}
}
