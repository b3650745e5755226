package hw

import "bytes"
import "encoding/binary"
import "testing"
import "time"

import "rv6/riscv"

func mkmach(t *testing.T, disk Backing_i) *Machine_t {
	m, err := MkMachine(Mconfig_t{Ncpu: 2, Ramsize: 1 << 20, Disk: disk,
		Console: &bytes.Buffer{}, Tick: time.Hour})
	if err != nil {
		t.Fatalf("mkmachine: %v", err)
	}
	return m
}

func TestRam(t *testing.T) {
	m := mkmach(t, nil)
	defer m.Close()
	b := m.Ram.Slice(riscv.KERNBASE+8, 4)
	b[0] = 0x11
	if m.Ram.Load32(riscv.KERNBASE+8) != 0x11 {
		t.Fatalf("load")
	}
	m.Ram.Discard(riscv.KERNBASE, riscv.PGSIZE)
	if m.Ram.Load32(riscv.KERNBASE+8) != 0 {
		t.Fatalf("discard")
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("no bus error")
			}
		}()
		m.Ram.Slice(m.Ram.Top()-2, 4)
	}()
}

func TestPlic(t *testing.T) {
	m := mkmach(t, nil)
	defer m.Close()
	b := m.Bus
	b.Write32(riscv.PLIC+4*riscv.VIRTIO0_IRQ, 1)
	b.Write32(riscv.PLIC_SENABLE(1), 1<<riscv.VIRTIO0_IRQ)
	b.Write32(riscv.PLIC_SPRIORITY(1), 0)

	m.Plic.Irq(riscv.VIRTIO0_IRQ)
	if m.Harts[0].Pending()&SEIP != 0 {
		t.Fatalf("hart 0 not enabled")
	}
	if m.Harts[1].Pending()&SEIP == 0 {
		t.Fatalf("hart 1 not raised")
	}
	irq := b.Read32(riscv.PLIC_SCLAIM(1))
	if irq != riscv.VIRTIO0_IRQ {
		t.Fatalf("claim %d", irq)
	}
	if m.Harts[1].Pending()&SEIP != 0 {
		t.Fatalf("still raised after claim")
	}
	if b.Read32(riscv.PLIC_SCLAIM(1)) != 0 {
		t.Fatalf("double claim")
	}
	b.Write32(riscv.PLIC_SCLAIM(1), irq)
}

func TestUart(t *testing.T) {
	out := &bytes.Buffer{}
	m, err := MkMachine(Mconfig_t{Ncpu: 1, Ramsize: 1 << 20, Console: out,
		Tick: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	for _, c := range []uint8("hi") {
		m.Bus.Write32(riscv.UART0+UART_THR, uint32(c))
	}
	if out.String() != "hi" {
		t.Fatalf("out %q", out.String())
	}
	m.Uart.Input([]uint8("x"))
	if m.Bus.Read32(riscv.UART0+UART_LSR)&UART_LSR_RX == 0 {
		t.Fatalf("no rx")
	}
	if m.Bus.Read32(riscv.UART0+UART_RHR) != 'x' {
		t.Fatalf("rhr")
	}
}

func TestClint(t *testing.T) {
	m, err := MkMachine(Mconfig_t{Ncpu: 2, Ramsize: 1 << 20,
		Console: &bytes.Buffer{}, Tick: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	for _, h := range m.Harts {
		for h.Pending()&STIP == 0 {
			if !h.Wfi(time.Second) {
				t.Fatalf("stopped")
			}
		}
	}
	m.Stop()
	if m.Harts[0].Wfi(time.Hour) {
		t.Fatalf("wfi after stop")
	}
	// a wake token queued after stop
	h := m.Harts[1]
	h.Clear(STIP | SEIP | SSIP)
	h.Raise(SSIP)
	h.Clear(SSIP)
	for i := 0; i < 100; i++ {
		if h.Wfi(time.Hour) {
			t.Fatalf("wfi woke after stop")
		}
	}
	m.Close()
}

// builds one request by hand the way a driver would.
func TestVirtioRequest(t *testing.T) {
	disk := MkMemdisk(64 * 1024)
	copy(disk.data[3*SECTORSZ:], []uint8("sector three"))
	m := mkmach(t, disk)
	m.Start()
	defer m.Close()
	defer m.Stop()

	b := m.Bus
	reg := func(r uint64) uint64 { return riscv.VIRTIO0 + r }
	if b.Read32(reg(VIRTIO_MMIO_MAGIC_VALUE)) != 0x74726976 ||
		b.Read32(reg(VIRTIO_MMIO_DEVICE_ID)) != 2 {
		t.Fatalf("not a disk")
	}
	const num = 8
	q := riscv.KERNBASE + 4*riscv.PGSIZE
	b.Write32(reg(VIRTIO_MMIO_GUEST_PAGE_SIZE), riscv.PGSIZE)
	b.Write32(reg(VIRTIO_MMIO_QUEUE_NUM), num)
	b.Write32(reg(VIRTIO_MMIO_QUEUE_PFN), uint32(q/riscv.PGSIZE))
	b.Write32(reg(VIRTIO_MMIO_STATUS), VIRTIO_CONFIG_S_ACKNOWLEDGE|
		VIRTIO_CONFIG_S_DRIVER|VIRTIO_CONFIG_S_FEATURES_OK|
		VIRTIO_CONFIG_S_DRIVER_OK)

	hdr := riscv.KERNBASE + 8*riscv.PGSIZE
	data := hdr + 64
	stat := hdr + 32
	h := m.Ram.Slice(hdr, 16)
	binary.LittleEndian.PutUint32(h[0:], VIRTIO_BLK_T_IN)
	binary.LittleEndian.PutUint64(h[8:], 3)
	setd := func(i int, a uint64, l uint32, fl, nx uint16) {
		d := m.Ram.Slice(q+16*uint64(i), 16)
		binary.LittleEndian.PutUint64(d[0:], a)
		binary.LittleEndian.PutUint32(d[8:], l)
		binary.LittleEndian.PutUint16(d[12:], fl)
		binary.LittleEndian.PutUint16(d[14:], nx)
	}
	setd(0, hdr, 16, VRING_DESC_F_NEXT, 1)
	setd(1, data, SECTORSZ, VRING_DESC_F_NEXT|VRING_DESC_F_WRITE, 2)
	setd(2, stat, 1, VRING_DESC_F_WRITE, 0)
	m.Ram.Slice(stat, 1)[0] = 0xff
	avail := q + num*16
	binary.LittleEndian.PutUint16(m.Ram.Slice(avail+4, 2), 0)
	m.Ram.Store32(avail, 1<<16)
	b.Write32(reg(VIRTIO_MMIO_QUEUE_NOTIFY), 0)

	used := q + riscv.PGSIZE
	deadline := time.Now().Add(5 * time.Second)
	for m.Ram.Load32(used)>>16 != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("no completion")
		}
		time.Sleep(time.Millisecond)
	}
	if m.Ram.Slice(stat, 1)[0] != VIRTIO_BLK_S_OK {
		t.Fatalf("status")
	}
	if string(m.Ram.Slice(data, 12)) != "sector three" {
		t.Fatalf("data %q", m.Ram.Slice(data, 12))
	}
	if b.Read32(reg(VIRTIO_MMIO_INTERRUPT_STATUS))&1 == 0 {
		t.Fatalf("no interrupt status")
	}
}

func TestTraceCrash(t *testing.T) {
	base := MkMemdisk(4 * 1024)
	img := base.Image()
	td := MkTracedisk(base, nil)
	td.WriteAt([]uint8{1}, 0)
	td.Sync()
	td.WriteAt([]uint8{2}, 1024)
	td.WriteAt([]uint8{3}, 2048)
	tr := td.Trace()
	if tr.Nwrites() != 3 || len(tr) != 4 {
		t.Fatalf("trace %v", tr)
	}
	d := tr.Crash(img, 2)
	got := d.Image()
	if got[0] != 1 || got[1024] != 2 || got[2048] != 0 {
		t.Fatalf("crash image wrong")
	}
	var buf bytes.Buffer
	td2 := MkTracedisk(MkMemdisk(1024), &buf)
	td2.WriteAt([]uint8{9}, 5)
	rt, err := ReadTrace(&buf)
	if err != nil || len(rt) != 1 || rt[0].Off != 5 || rt[0].Data[0] != 9 {
		t.Fatalf("readtrace %v %v", rt, err)
	}
}
