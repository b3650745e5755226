// Package console is the console device (major D_CONSOLE): line editing of
// bytes arriving from the UART and output to the UART's transmitter.
package console

import "rv6/circbuf"
import "rv6/defs"
import "rv6/fdops"
import "rv6/hw"
import "rv6/lock"
import "rv6/mem"
import "rv6/riscv"

const INPUT_BUF = 128

func ctrl(c uint8) uint8 {
	return c - '@'
}

const (
	backspace = 0x100
	del       = 0x7f
)

type Console_t struct {
	sync lock.Spinlock_t
	bus  *hw.Bus_t
	// lines ready for readers
	cb circbuf.Circbuf_t
	// the line being edited
	line []uint8
	// a ^D that ended a non-empty read; the next read returns 0
	eof bool
	// readers sleep here until a line is committed
	rwc lock.Waitchannel_t
	// called on ^P, without the console lock
	Procdump func(k lock.Kctx_i)
}

func MkConsole(h lock.Kctx_i, bus *hw.Bus_t, phys mem.Page_i) (*Console_t, defs.Err_t) {
	cons := &Console_t{bus: bus}
	cons.sync.Init("cons")
	cons.cb.Cb_init(INPUT_BUF, phys)
	if err := cons.cb.Cb_ensure(h); err != 0 {
		return nil, err
	}
	cons.line = make([]uint8, 0, INPUT_BUF)
	// 8 bits, no parity; receive interrupts on
	bus.Write32(riscv.UART0+hw.UART_LCR, 0x3)
	bus.Write32(riscv.UART0+hw.UART_IER, hw.UART_IER_RX)
	return cons, 0
}

func (cons *Console_t) uartputc(c uint8) {
	for cons.bus.Read32(riscv.UART0+hw.UART_LSR)&hw.UART_LSR_TX == 0 {
	}
	cons.bus.Write32(riscv.UART0+hw.UART_THR, uint32(c))
}

func (cons *Console_t) putc(c int) {
	if c == backspace {
		cons.uartputc('\b')
		cons.uartputc(' ')
		cons.uartputc('\b')
	} else {
		cons.uartputc(uint8(c))
	}
}

// kernel output. implements io.Writer, without the console lock so that a
// panic can always print.
func (cons *Console_t) Write_kernel(p []uint8) (int, error) {
	for _, c := range p {
		cons.uartputc(c)
	}
	return len(p), nil
}

func (cons *Console_t) Write(k lock.Kctx_i, src fdops.Userio_i) (int, defs.Err_t) {
	var buf [64]uint8
	tot := 0
	for src.Remain() != 0 {
		n, err := src.Uioread(buf[:])
		if n == 0 || err != 0 {
			if tot == 0 {
				return 0, err
			}
			break
		}
		cons.sync.Acquire(k)
		for _, c := range buf[:n] {
			cons.uartputc(c)
		}
		cons.sync.Release(k)
		tot += n
	}
	return tot, 0
}

// copies at most one line to dst, waiting for one to be typed.
func (cons *Console_t) Read(k lock.Kctx_i, dst fdops.Userio_i) (int, defs.Err_t) {
	cons.sync.Acquire(k)
	defer cons.sync.Release(k)
	if cons.eof {
		cons.eof = false
		return 0, 0
	}
	tot := 0
	for dst.Remain() != 0 {
		for cons.cb.Empty() {
			if tot != 0 {
				return tot, 0
			}
			if k.Killed() {
				return 0, -defs.EINTR
			}
			cons.rwc.Sleep(&cons.sync, k)
		}
		c, _ := cons.cb.Getc()
		if c == ctrl('D') {
			if tot != 0 {
				cons.eof = true
			}
			return tot, 0
		}
		if _, err := dst.Uiowrite([]uint8{c}); err != 0 {
			return tot, err
		}
		tot++
		if c == '\n' {
			break
		}
	}
	return tot, 0
}

// the UART interrupt: drains received bytes through the line editor.
func (cons *Console_t) Intr(k lock.Kctx_i) {
	for cons.bus.Read32(riscv.UART0+hw.UART_LSR)&hw.UART_LSR_RX != 0 {
		c := uint8(cons.bus.Read32(riscv.UART0 + hw.UART_RHR))
		if c == ctrl('P') {
			if cons.Procdump != nil {
				cons.Procdump(k)
			}
			continue
		}
		cons.sync.Acquire(k)
		cons.edit(k, c)
		cons.sync.Release(k)
	}
}

func (cons *Console_t) edit(k lock.Kctx_i, c uint8) {
	switch c {
	case ctrl('U'):
		for len(cons.line) > 0 && cons.line[len(cons.line)-1] != '\n' {
			cons.line = cons.line[:len(cons.line)-1]
			cons.putc(backspace)
		}
	case ctrl('H'), del:
		if len(cons.line) > 0 {
			cons.line = cons.line[:len(cons.line)-1]
			cons.putc(backspace)
		}
	default:
		if c == 0 || len(cons.line)+cons.cb.Used() >= INPUT_BUF {
			return
		}
		if c == '\r' {
			c = '\n'
		}
		cons.putc(int(c))
		cons.line = append(cons.line, c)
		if c == '\n' || c == ctrl('D') ||
			len(cons.line)+cons.cb.Used() == INPUT_BUF {
			for _, b := range cons.line {
				cons.cb.Putc(b)
			}
			cons.line = cons.line[:0]
			cons.rwc.Wakeup(k)
		}
	}
}
