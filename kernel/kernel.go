// Package kernel wires the subsystems into a bootable machine: physical
// memory, the kernel page table, the interrupt controller, the disk, the
// buffer cache, a file system, the process table, traps and system calls.
package kernel

import "fmt"
import "io"
import "os"
import "sync"
import "sync/atomic"
import "time"

import "rv6/bio"
import "rv6/caller"
import "rv6/console"
import "rv6/cpu"
import "rv6/defs"
import "rv6/file"
import "rv6/fs"
import "rv6/hw"
import "rv6/lfs"
import "rv6/lock"
import "rv6/lockdep"
import "rv6/mem"
import "rv6/plic"
import "rv6/proc"
import "rv6/riscv"
import "rv6/sys"
import "rv6/trap"
import "rv6/ufs"
import "rv6/umode"
import "rv6/virtio"
import "rv6/vm"

const (
	UFS = "ufs"
	LFS = "lfs"
)

type Config_t struct {
	Ncpu    int
	Ramsize int
	// "ufs" or "lfs"
	Fstype  string
	Disk    hw.Backing_i
	Console io.Writer
	Tick    time.Duration
	// the program the first process execs; "" boots without user space
	Init string
	// record lock acquisition order
	Lockdep bool
}

func Defconfig() Config_t {
	return Config_t{
		Ncpu:    defs.NCPU,
		Ramsize: 128 << 20,
		Fstype:  UFS,
		Console: os.Stdout,
		Tick:    10 * time.Millisecond,
		Init:    "/init",
	}
}

type Kernel_t struct {
	Conf  Config_t
	M     *hw.Machine_t
	Cpus  cpu.Cpus_t
	Phys  *mem.Physmem_t
	Kpt   *vm.Pagetable_t
	Plic  *plic.Plic_t
	Disk  *virtio.Disk_t
	Bc    *bio.Bcache_t
	Fs    *fs.Fs_t
	Ft    *file.Ftable_t
	Cons  *console.Console_t
	Procs *proc.Procs_t
	Trap  *trap.Trap_t
	Sys   *sys.Sys_t
	Umode *umode.Umode_t
	// the context of callers outside the machine, such as tests.
	// hostlk serializes them.
	hostlk sync.Mutex
	host   *cpu.Cpu_t
	// the running schedulers
	harts    sync.WaitGroup
	haltonce sync.Once
	// closed by Halt
	halted   chan struct{}
	panicked atomic.Bool
	outlk    sync.Mutex
}

// the number of pages the lfs segment staging area needs.
func stagepages() int {
	n := defs.SEGSIZE * bio.BSIZE / mem.PGSIZE
	if (defs.SEGSIZE*bio.BSIZE)%mem.PGSIZE != 0 {
		n++
	}
	return n
}

// boots a machine on conf.Disk and starts a scheduler on every hart.
func Boot(conf Config_t) (*Kernel_t, error) {
	if conf.Disk == nil {
		return nil, fmt.Errorf("no disk")
	}
	if conf.Console == nil {
		conf.Console = os.Stdout
	}
	if conf.Fstype == "" {
		conf.Fstype = UFS
	}
	if conf.Fstype != UFS && conf.Fstype != LFS {
		return nil, fmt.Errorf("unknown file system type %q", conf.Fstype)
	}
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: conf.Ncpu, Ramsize: conf.Ramsize,
		Disk: conf.Disk, Console: conf.Console, Tick: conf.Tick})
	if err != nil {
		return nil, err
	}
	k := &Kernel_t{Conf: conf, M: m, halted: make(chan struct{})}
	if conf.Lockdep {
		lock.Lockdep = lockdep.MkLockdep()
	}
	k.Cpus = cpu.MkCpus(m)
	k.host = cpu.MkCpu(len(k.Cpus), nil)
	h := k.Cpus[0]

	// the first page above KERNBASE plays the kernel's text.
	etext := mem.Pa_t(riscv.KERNBASE + riscv.PGSIZE)
	k.Phys = mem.Phys_init(m.Ram, etext)
	tramp := k.Phys.Boot_alloc(1)
	vqpages := k.Phys.Boot_alloc(virtio.NPAGES)
	stage := k.Phys.Boot_alloc(stagepages())
	k.Phys.Freerange(h)
	k.Kpt = vm.Kvmmake(h, k.Phys, etext, tramp)

	k.Plic = plic.MkPlic(m.Bus)
	k.Plic.Init()
	k.Disk = virtio.Init(m.Bus, riscv.VIRTIO0, k.Phys, vqpages)

	k.Procs = proc.MkProcs(k.Cpus, k.Phys, k.Kpt, tramp, nil, nil)
	k.Procs.Oops = k.Panic
	hk := k.Procs.Hartk(h)
	k.Bc = bio.Mkbcache(hk, k.Phys, k.Disk, defs.NBUF)
	switch conf.Fstype {
	case UFS:
		k.Fs = ufs.Mkufs(k.Bc, defs.ROOTDEV)
	case LFS:
		k.Fs = lfs.Mklfs(k.Bc, defs.ROOTDEV, k.Phys, stage)
	}
	k.Ft = file.MkFtable(k.Fs, k.Phys)
	k.Procs.Fs = k.Fs
	k.Procs.Ftable = k.Ft

	cons, cerr := console.MkConsole(hk, m.Bus, k.Phys)
	if cerr != 0 {
		m.Close()
		return nil, fmt.Errorf("console: %v", cerr)
	}
	k.Cons = cons
	k.Cons.Procdump = func(lock.Kctx_i) {
		k.Procs.Procdump(k)
	}
	k.Ft.Devsw[defs.D_CONSOLE] = k.Cons

	k.Trap = trap.MkTrap(k.Procs, k.Plic, k.Disk, k.Cons)
	k.Sys = sys.MkSys(k.Procs, k.Ft, k.Trap)
	k.Trap.Syscall = k.Sys.Syscall
	k.Umode = umode.MkUmode(k.Trap, k.Phys)
	k.Procs.Userret = k.Umode.Userret
	for _, c := range k.Cpus {
		k.Trap.Inithart(c)
	}

	var ierr defs.Err_t
	if conf.Init == "" {
		ierr = k.Procs.Kinit(h)
	} else {
		ierr = k.Procs.Userinit(h, umode.Initcode(conf.Init))
	}
	if ierr != 0 {
		m.Close()
		return nil, fmt.Errorf("init: %v", ierr)
	}
	m.Start()
	k.Printf("rv6 kernel is booting on %d harts (%s)\n", len(k.Cpus), conf.Fstype)
	for _, c := range k.Cpus {
		k.harts.Add(1)
		go k.hartmain(c)
	}
	return k, nil
}

func (k *Kernel_t) hartmain(c *cpu.Cpu_t) {
	defer k.harts.Done()
	defer func() {
		if r := recover(); r != nil {
			k.Panic(r)
		}
	}()
	k.Procs.Scheduler(c)
}

// writes to the console, bypassing the UART so that it works from any
// context, including a panicking one.
func (k *Kernel_t) Write(p []uint8) (int, error) {
	k.outlk.Lock()
	defer k.outlk.Unlock()
	return k.Conf.Console.Write(p)
}

func (k *Kernel_t) Printf(format string, a ...any) {
	fmt.Fprintf(k, format, a...)
}

// reports a kernel panic and halts every hart. the goroutine that
// panicked should not run kernel code afterwards.
func (k *Kernel_t) Panic(v any) {
	k.panicked.Store(true)
	k.Printf("panic: %v\n", v)
	k.Printf("%s", caller.Callers(1))
	k.Halt()
}

func (k *Kernel_t) Panicked() bool {
	return k.panicked.Load()
}

// stops the clock and the disk. the schedulers return once they notice.
func (k *Kernel_t) Halt() {
	k.haltonce.Do(func() {
		k.M.Stop()
		close(k.halted)
	})
}

// halts the machine, waits for the harts to park and flushes the disk. after
// a panic a hart may be wedged, so Shutdown doesn't wait and keeps the
// machine's memory mapped.
func (k *Kernel_t) Shutdown() error {
	k.Halt()
	if k.Panicked() {
		return k.Conf.Disk.Sync()
	}
	k.harts.Wait()
	err := k.Conf.Disk.Sync()
	if cerr := k.M.Close(); err == nil {
		err = cerr
	}
	if lock.Lockdep != nil {
		if cyc := lock.Lockdep.Cycles(); len(cyc) != 0 {
			k.Printf("lockdep: %d lock order cycles\n", len(cyc))
			lock.Lockdep.Report(k)
		}
		lock.Lockdep = nil
	}
	return err
}

// runs fn in the host context, which stands in for a hart outside the
// machine.
func (k *Kernel_t) Host(fn func(h cpu.Hartctx_i)) {
	k.hostlk.Lock()
	defer k.hostlk.Unlock()
	fn(k.host)
}

// the counters of every subsystem.
func (k *Kernel_t) Stats() string {
	s := k.Procs.Stats() + k.Trap.Stats() + k.Sys.Stats() + k.Fs.Stats() +
		k.Disk.Stats()
	k.Host(func(h cpu.Hartctx_i) {
		s += fmt.Sprintf("mem\n\tfree pages: %d\n", k.Phys.Pgcount(h))
	})
	return s
}
