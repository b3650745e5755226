package kernel

import "bytes"
import "fmt"
import "sync"
import "time"

import "rv6/cpu"
import "rv6/defs"
import "rv6/file"
import "rv6/fs"
import "rv6/hw"
import "rv6/lfs"
import "rv6/proc"
import "rv6/ufs"
import "rv6/umode"
import "rv6/uprog"
import "rv6/ustr"

// builds a file system image of type fstype whose root holds the console
// device node and an executable for each of progs.
func Mkimage(fstype string, nblocks, ninodes int, progs []string) ([]uint8, error) {
	ents := []fs.Mkent_t{{Name: "console", Type: defs.T_DEVICE,
		Major: uint16(defs.D_CONSOLE)}}
	for _, p := range progs {
		ents = append(ents, fs.Mkent_t{Name: p, Type: defs.T_FILE,
			Data: umode.Mkelf(p)})
	}
	switch fstype {
	case UFS, "":
		return ufs.Mkimage(nblocks, ninodes, ents)
	case LFS:
		return lfs.Mkimage(nblocks, ninodes, ents)
	}
	return nil, fmt.Errorf("unknown file system type %q", fstype)
}

// console output that tests can inspect while the machine writes it.
type Outbuf_t struct {
	sync.Mutex
	b bytes.Buffer
}

func (o *Outbuf_t) Write(p []uint8) (int, error) {
	o.Lock()
	defer o.Unlock()
	return o.b.Write(p)
}

func (o *Outbuf_t) String() string {
	o.Lock()
	defer o.Unlock()
	return o.b.String()
}

type Test_t struct {
	*Kernel_t
	Out   *Outbuf_t
	Store *hw.Memdisk_t
}

// boots ncpu harts without user init on a fresh in-memory image holding
// the installed programs and extra.
func Mktest(fstype string, ncpu int, extra ...string) (*Test_t, error) {
	progs := append(append([]string{}, uprog.Installed...), extra...)
	img, err := Mkimage(fstype, 2000, 200, progs)
	if err != nil {
		return nil, err
	}
	return Boottest(fstype, ncpu, hw.MkMemdiskFrom(img))
}

// boots ncpu harts without user init on disk.
func Boottest(fstype string, ncpu int, disk *hw.Memdisk_t) (*Test_t, error) {
	conf := Defconfig()
	conf.Ncpu = ncpu
	conf.Ramsize = 32 << 20
	conf.Fstype = fstype
	conf.Disk = disk
	conf.Tick = time.Millisecond
	conf.Init = ""
	out := &Outbuf_t{}
	conf.Console = out
	k, err := Boot(conf)
	if err != nil {
		return nil, err
	}
	return &Test_t{Kernel_t: k, Out: out, Store: disk}, nil
}

// runs fn in a new kernel task and returns its result. fails with EIO if
// the machine halts first, as it does when fn panics.
func (k *Kernel_t) Run(name string, fn func(p *proc.Proc_t) int) (int, defs.Err_t) {
	res := make(chan int, 1)
	var err defs.Err_t
	k.Host(func(h cpu.Hartctx_i) {
		_, err = k.Procs.Spawn(h, name, func(p *proc.Proc_t) {
			res <- fn(p)
		})
	})
	if err != 0 {
		return 0, err
	}
	select {
	case r := <-res:
		return r, 0
	case <-k.halted:
		// fn may have finished just before
		select {
		case r := <-res:
			return r, 0
		default:
			return 0, -defs.EIO
		}
	}
}

// opens the console as the calling task's fds 0, 1 and 2.
func (k *Kernel_t) Openconsole(p *proc.Proc_t) defs.Err_t {
	f, err := k.Ft.Open(p, p.Cwd, ustr.Ustr("/console"), defs.O_RDWR)
	if err != 0 {
		return err
	}
	for i := 0; i < 3; i++ {
		if i > 0 {
			f = file.Copyfd(p, f)
		}
		if _, err := p.Fdalloc(f); err != 0 {
			f.Close(p)
			return err
		}
	}
	return 0
}

// runs the user program at path with the console as its standard files
// and returns its exit status.
func (k *Kernel_t) Runprog(path string, argv ...string) (int, defs.Err_t) {
	uargv := make([]ustr.Ustr, 0, len(argv))
	for _, a := range argv {
		uargv = append(uargv, ustr.Ustr(a))
	}
	var xerr defs.Err_t
	st, err := k.Run("run "+path, func(p *proc.Proc_t) int {
		if xerr = k.Openconsole(p); xerr != 0 {
			return 0
		}
		pid, err := p.Spawnprog(ustr.Ustr(path), uargv)
		if err != 0 {
			xerr = err
			return 0
		}
		for {
			wpid, st, err := p.Waitstatus()
			if err != 0 {
				xerr = err
				return 0
			}
			if wpid == pid {
				return st
			}
		}
	})
	if err != 0 {
		return 0, err
	}
	return st, xerr
}
