// Command boot runs the kernel on a disk image, with the terminal as the
// console. Type ^A x to power off.
package main

import "flag"
import "fmt"
import "io"
import "log"
import "os"
import "time"

import tty "github.com/mattn/go-tty"

import "rv6/hw"
import "rv6/kernel"

const ctrla = 0x01

// raw mode turns off output processing, so newlines need a carriage return.
type crlf_t struct {
	w io.Writer
}

func (c *crlf_t) Write(p []uint8) (int, error) {
	b := make([]uint8, 0, len(p)+8)
	for _, ch := range p {
		if ch == '\n' {
			b = append(b, '\r')
		}
		b = append(b, ch)
	}
	if _, err := c.w.Write(b); err != nil {
		return 0, err
	}
	return len(p), nil
}

// feeds typed bytes to the UART until ^A x or the end of input.
func input(in io.Reader, m *hw.Machine_t, done chan<- bool) {
	buf := make([]uint8, 64)
	esc := false
	for {
		n, err := in.Read(buf)
		if err != nil {
			done <- true
			return
		}
		var out []uint8
		for _, c := range buf[:n] {
			switch {
			case esc && c == 'x':
				m.Uart.Input(out)
				done <- true
				return
			case esc:
				esc = false
				out = append(out, ctrla, c)
			case c == ctrla:
				esc = true
			default:
				out = append(out, c)
			}
		}
		m.Uart.Input(out)
	}
}

func main() {
	conf := kernel.Defconfig()
	disk := flag.String("disk", "fs.img", "disk image")
	flag.StringVar(&conf.Fstype, "fs", conf.Fstype, "file system type (ufs or lfs)")
	flag.IntVar(&conf.Ncpu, "ncpu", conf.Ncpu, "number of harts")
	mem := flag.Int("mem", conf.Ramsize>>20, "RAM in MiB")
	flag.DurationVar(&conf.Tick, "tick", conf.Tick, "timer interrupt interval")
	trace := flag.String("trace", "", "write a JSON trace of disk writes to this file")
	stats := flag.Bool("stats", false, "print kernel statistics at power off")
	flag.BoolVar(&conf.Lockdep, "lockdep", false, "check lock order")
	flag.Parse()
	conf.Ramsize = *mem << 20

	d, err := hw.OpenFiledisk(*disk)
	if err != nil {
		log.Fatalf("boot: %v", err)
	}
	conf.Disk = d
	if *trace != "" {
		tf, err := os.Create(*trace)
		if err != nil {
			log.Fatalf("boot: %v", err)
		}
		defer tf.Close()
		conf.Disk = hw.MkTracedisk(d, tf)
	}

	var in io.Reader = os.Stdin
	conf.Console = os.Stdout
	if t, err := tty.Open(); err == nil {
		restore, err := t.Raw()
		if err != nil {
			log.Fatalf("boot: raw mode: %v", err)
		}
		defer restore()
		defer t.Close()
		in = t.Input()
		conf.Console = &crlf_t{w: t.Output()}
	}

	k, err := kernel.Boot(conf)
	if err != nil {
		log.Fatalf("boot: %v", err)
	}
	done := make(chan bool, 1)
	go input(in, k.M, done)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for up := true; up; {
		select {
		case <-done:
			up = false
		case <-tick.C:
			up = !k.Panicked()
		}
	}
	k.Printf("\npower off\n")
	if *stats {
		k.Printf("%s", k.Stats())
	}
	if err := k.Shutdown(); err != nil {
		log.Printf("boot: shutdown: %v", err)
	}
	if err := d.Close(); err != nil {
		log.Printf("boot: %v", err)
	}
	if k.Panicked() {
		fmt.Fprintf(os.Stderr, "kernel panic\n")
	}
}
