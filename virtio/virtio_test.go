package virtio

import "sync"
import "testing"
import "time"

import "rv6/bio"
import "rv6/cpu"
import "rv6/defs"
import "rv6/hw"
import "rv6/lock"
import "rv6/mem"
import "rv6/plic"
import "rv6/riscv"

type sched_t struct {
	sync.Mutex
	sleepers map[*lock.Waitchannel_t][]chan struct{}
}

type fakectx_t struct {
	c *cpu.Cpu_t
	s *sched_t
}

func (f *fakectx_t) Cpu() *cpu.Cpu_t { return f.c }
func (f *fakectx_t) Killed() bool    { return false }
func (f *fakectx_t) Pid() int        { return f.c.Id + 1 }

func (f *fakectx_t) Sleep(wc *lock.Waitchannel_t, lk *lock.Spinlock_t) {
	ch := make(chan struct{})
	f.s.Lock()
	f.s.sleepers[wc] = append(f.s.sleepers[wc], ch)
	f.s.Unlock()
	lk.Release(f)
	<-ch
	lk.Acquire(f)
}

func (f *fakectx_t) Wakeup(wc *lock.Waitchannel_t) {
	f.s.Lock()
	for _, ch := range f.s.sleepers[wc] {
		close(ch)
	}
	delete(f.s.sleepers, wc)
	f.s.Unlock()
}

type rig_t struct {
	m    *hw.Machine_t
	phys *mem.Physmem_t
	d    *Disk_t
	ks   []*fakectx_t
}

// brings up a machine whose hart 0 serves disk interrupts. the other harts
// are for requesters.
func mkrig(t *testing.T, ncpu int) *rig_t {
	disk := hw.MkMemdisk(64 * defs.BSIZE)
	m, err := hw.MkMachine(hw.Mconfig_t{Ncpu: ncpu, Ramsize: 1 << 20,
		Disk: disk, Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	s := &sched_t{sleepers: make(map[*lock.Waitchannel_t][]chan struct{})}
	r := &rig_t{m: m}
	for _, c := range cpu.MkCpus(m) {
		r.ks = append(r.ks, &fakectx_t{c: c, s: s})
	}
	r.phys = mem.Phys_init(m.Ram, mem.Pa_t(riscv.KERNBASE+mem.PGSIZE))
	pages := r.phys.Boot_alloc(NPAGES)
	r.phys.Freerange(r.ks[0])

	p := plic.MkPlic(m.Bus)
	p.Init()
	p.Inithart(0)
	m.Start()
	r.d = Init(m.Bus, riscv.VIRTIO0, r.phys, pages)

	ik := r.ks[0]
	h := m.Harts[0]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for h.Wfi(time.Hour) {
			if h.Pending()&hw.SEIP == 0 {
				continue
			}
			irq := p.Claim(0)
			if irq == riscv.VIRTIO0_IRQ {
				r.d.Intr(ik)
			}
			if irq != 0 {
				p.Complete(0, irq)
			}
		}
	}()
	t.Cleanup(func() {
		m.Stop()
		<-done
		m.Close()
	})
	return r
}

func (r *rig_t) frame(t *testing.T, fill uint8) mem.Pa_t {
	pa, ok := r.phys.Alloc(r.ks[0])
	if !ok {
		t.Fatalf("no frame")
	}
	b := r.phys.Dmap8(pa)
	for i := range b {
		b[i] = fill
	}
	return pa
}

func (r *rig_t) rw(k lock.Kctx_i, cmd bio.Bdevcmd_t, bno int, pa mem.Pa_t) {
	req := &bio.Bdev_req_t{Cmd: cmd, Blockno: bno, Pa: pa, Len: defs.BSIZE}
	r.d.Rw(k, req)
}

func TestReadWrite(t *testing.T) {
	r := mkrig(t, 2)
	k := r.ks[1]
	src := r.frame(t, 0xab)
	r.rw(k, bio.BDEV_WRITE, 5, src)
	dst := r.frame(t, 0)
	r.rw(k, bio.BDEV_READ, 5, dst)
	b := r.phys.Dmaplen(dst, defs.BSIZE)
	for i := range b {
		if b[i] != 0xab {
			t.Fatalf("byte %d is %#x", i, b[i])
		}
	}
	if r.d.Nfree(k) != NUM {
		t.Fatalf("descriptors leaked")
	}
	if r.d.stats.Nreq.Get() != 2 {
		t.Fatalf("nreq %d", r.d.stats.Nreq.Get())
	}
}

func TestWriteSeq(t *testing.T) {
	r := mkrig(t, 2)
	k := r.ks[1]
	src := r.frame(t, 7)
	r.d.Write_seq(k, src, mem.PGSIZE/defs.BSIZE, 10)
	dst := r.frame(t, 0)
	r.rw(k, bio.BDEV_READ, 13, dst)
	if r.phys.Dmap8(dst)[0] != 7 {
		t.Fatalf("last block of run not written")
	}
}

func waitfor(t *testing.T, what string, f func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// three concurrent requests need nine descriptors but there are eight: the
// third requester waits until one of the first two completes.
func TestDescriptorExhaustion(t *testing.T) {
	r := mkrig(t, 5)
	r.m.Virtio.Hold()
	var wg sync.WaitGroup
	pas := make([]mem.Pa_t, 3)
	for i := range pas {
		pas[i] = r.frame(t, uint8(i+1))
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.rw(r.ks[i+1], bio.BDEV_WRITE, 20+i, pas[i])
		}(i)
		if i < 2 {
			waitfor(t, "submission", func() bool {
				return r.d.Nfree(r.ks[4]) == NUM-3*(i+1)
			})
		}
	}
	waitfor(t, "third requester to block", func() bool {
		return r.d.stats.Nwaitdesc.Get() >= 1
	})
	if n := r.d.Nfree(r.ks[4]); n != NUM-6 {
		t.Fatalf("free descriptors %d", n)
	}
	r.m.Virtio.Unhold()

	fin := make(chan struct{})
	go func() {
		wg.Wait()
		close(fin)
	}()
	select {
	case <-fin:
	case <-time.After(5 * time.Second):
		t.Fatalf("requests never completed")
	}
	for i := 0; i < 3; i++ {
		dst := r.frame(t, 0)
		r.rw(r.ks[4], bio.BDEV_READ, 20+i, dst)
		if r.phys.Dmap8(dst)[0] != uint8(i+1) {
			t.Fatalf("block %d", 20+i)
		}
	}
	if r.d.Nfree(r.ks[4]) != NUM {
		t.Fatalf("descriptors leaked")
	}
}
