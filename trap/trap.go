// Package trap handles traps from user space (system calls, faults and
// interrupts), interrupts taken in the kernel, and the clock.
package trap

import "fmt"

import "rv6/console"
import "rv6/cpu"
import "rv6/defs"
import "rv6/hw"
import "rv6/lock"
import "rv6/plic"
import "rv6/proc"
import "rv6/riscv"
import "rv6/stats"
import "rv6/virtio"

const trap_debug = false

type tstats_t struct {
	Nsyscall stats.Counter_t
	Ntimer   stats.Counter_t
	Ndevintr stats.Counter_t
	Nfault   stats.Counter_t
}

type Trap_t struct {
	procs *proc.Procs_t
	plic  *plic.Plic_t
	disk  *virtio.Disk_t
	cons  *console.Console_t
	// protects ticks
	tickslock lock.Spinlock_t
	ticks     int
	tickswc   lock.Waitchannel_t
	// the system call dispatcher
	Syscall func(p *proc.Proc_t)
	st      tstats_t
}

func MkTrap(procs *proc.Procs_t, pl *plic.Plic_t, disk *virtio.Disk_t,
	cons *console.Console_t) *Trap_t {
	t := &Trap_t{procs: procs, plic: pl, disk: disk, cons: cons}
	t.tickslock.Init("time")
	return t
}

func (t *Trap_t) Stats() string {
	return "trap" + stats.Stats2String(&t.st)
}

// installs the kernel trap vector on every hart.
func (t *Trap_t) Inithart(c *cpu.Cpu_t) {
	c.Trap = t.Kerneltrap
	t.plic.Inithart(c.Id)
}

// handles an interrupt, exception, or system call from user space. p's
// user program called this at an instruction boundary.
func (t *Trap_t) Usertrap(p *proc.Proc_t, scause, stval uint64) {
	start := p.Atime.Now()
	p.Atime.Utadd(start - p.Uentry)
	c := p.Cpu()
	// we're now in the kernel; interrupts stay off until a system call
	// turns them on.
	c.Intr_off()
	which := 0
	switch {
	case scause == riscv.EXC_ECALL_U:
		// system call
		if p.Killed() {
			p.Exit(defs.KILLED_STATUS)
		}
		// sepc points to the ecall instruction, but we want to return to
		// the next instruction.
		p.Tf.Epc += 4
		// an interrupt will change sepc, scause, and sstatus, so enable
		// only now that we're done with those registers.
		c.Intr_on()
		t.st.Nsyscall.Inc()
		t.Syscall(p)
	case scause&riscv.SCAUSE_INTR != 0:
		which = t.devintr(t.procs.Hartk(c), c)
		if which == 0 && !c.Hart.Stopped() {
			fmt.Printf("usertrap(): unexpected interrupt %#x pid=%d\n",
				scause, p.Pid())
			p.Setkilled()
		}
	default:
		t.st.Nfault.Inc()
		fmt.Printf("usertrap(): unexpected scause %#x pid=%d\n", scause, p.Pid())
		fmt.Printf("            sepc=%#x stval=%#x\n", p.Tf.Epc, stval)
		p.Setkilled()
	}
	if p.Killed() {
		p.Exit(defs.KILLED_STATUS)
	}
	// give up the CPU if this is a timer interrupt, or the machine is
	// going down.
	if which == 2 || p.Cpu().Hart.Stopped() {
		p.Yield()
	}
	p.Atime.Finish(start)
	t.Usertrapret(p)
}

// the user scause for whatever interrupt is pending on c, if any.
func Pendingcause(c *cpu.Cpu_t) (uint64, bool) {
	pend := c.Hart.Pending()
	switch {
	case pend&hw.SEIP != 0:
		return riscv.INTR_SEXT, true
	case pend&hw.STIP != 0:
		return riscv.INTR_STIMER, true
	case pend&hw.SSIP != 0:
		return riscv.INTR_SSOFT, true
	case c.Hart.Stopped():
		return riscv.INTR_STIMER, true
	}
	return 0, false
}

// called at a user instruction boundary: takes a pending interrupt.
func (t *Trap_t) Userpoll(p *proc.Proc_t) {
	if cause, ok := Pendingcause(p.Cpu()); ok {
		t.Usertrap(p, cause, 0)
	}
}

// return to user space. the trap frame gets the values the trampoline
// needs when the process next traps into the kernel.
func (t *Trap_t) Usertrapret(p *proc.Proc_t) {
	c := p.Cpu()
	// we're about to switch the destination of traps from kerneltrap() to
	// usertrap(), so turn off interrupts until we're back in user space.
	c.Intr_off()
	p.Tf.Kernel_satp = t.procs.Kernel_satp
	p.Tf.Kernel_sp = p.Kstack + riscv.PGSIZE
	p.Tf.Kernel_hartid = uint64(c.Id)
	p.Uentry = p.Atime.Now()
}

// interrupts while in the kernel arrive here via Cpu_t.Trap, with
// interrupts off. kernel threads are not preempted; a timer tick only
// advances the clock.
func (t *Trap_t) Kerneltrap(c *cpu.Cpu_t) {
	if c.Intr_get() {
		panic("kerneltrap: interrupts enabled")
	}
	if t.devintr(t.procs.Hartk(c), c) == 0 {
		panic(fmt.Sprintf("kerneltrap: pending %#x", c.Hart.Pending()))
	}
}

func (t *Trap_t) clockintr(k lock.Kctx_i) {
	t.tickslock.Acquire(k)
	t.ticks++
	t.tickswc.Wakeup(k)
	t.tickslock.Release(k)
}

// check if it's an external interrupt or software interrupt, and handle
// it. returns 2 if timer interrupt, 1 if other device, 0 if not
// recognized.
func (t *Trap_t) devintr(k lock.Kctx_i, c *cpu.Cpu_t) int {
	pend := c.Hart.Pending()
	switch {
	case pend&hw.SEIP != 0:
		// irq indicates which device interrupted.
		irq := t.plic.Claim(c.Id)
		switch irq {
		case riscv.UART0_IRQ:
			t.cons.Intr(k)
		case riscv.VIRTIO0_IRQ:
			t.disk.Intr(k)
		case 0:
		default:
			fmt.Printf("unexpected interrupt irq=%d\n", irq)
		}
		// the PLIC allows each device to raise at most one interrupt
		// at a time; tell the PLIC the device is now allowed to
		// interrupt again.
		if irq != 0 {
			t.plic.Complete(c.Id, irq)
		}
		t.st.Ndevintr.Inc()
		return 1
	case pend&hw.STIP != 0:
		// timer interrupt.
		if c.Id == 0 {
			t.clockintr(k)
		}
		c.Hart.Clear(hw.STIP)
		t.st.Ntimer.Inc()
		return 2
	case pend&hw.SSIP != 0:
		c.Hart.Clear(hw.SSIP)
		return 1
	}
	return 0
}

func (t *Trap_t) Ticks(k lock.Kctx_i) int {
	t.tickslock.Acquire(k)
	n := t.ticks
	t.tickslock.Release(k)
	return n
}

// sleeps for n clock ticks. fails if k is killed meanwhile.
func (t *Trap_t) Sleepticks(k lock.Kctx_i, n int) defs.Err_t {
	t.tickslock.Acquire(k)
	ticks0 := t.ticks
	for t.ticks-ticks0 < n {
		if k.Killed() {
			t.tickslock.Release(k)
			return -defs.EINTR
		}
		t.tickswc.Sleep(&t.tickslock, k)
	}
	t.tickslock.Release(k)
	return 0
}
