package hw

import "encoding/binary"
import "fmt"
import "sync"

import "rv6/riscv"

// legacy virtio-MMIO register offsets
const (
	VIRTIO_MMIO_MAGIC_VALUE      = 0x000 // 0x74726976
	VIRTIO_MMIO_VERSION          = 0x004 // version; 1 is legacy
	VIRTIO_MMIO_DEVICE_ID        = 0x008 // device type; 1 is net, 2 is disk
	VIRTIO_MMIO_VENDOR_ID        = 0x00c // 0x554d4551
	VIRTIO_MMIO_DEVICE_FEATURES  = 0x010
	VIRTIO_MMIO_DRIVER_FEATURES  = 0x020
	VIRTIO_MMIO_GUEST_PAGE_SIZE  = 0x028 // page size for PFN, write-only
	VIRTIO_MMIO_QUEUE_SEL        = 0x030 // select queue, write-only
	VIRTIO_MMIO_QUEUE_NUM_MAX    = 0x034 // max size of current queue, read-only
	VIRTIO_MMIO_QUEUE_NUM        = 0x038 // size of current queue, write-only
	VIRTIO_MMIO_QUEUE_PFN        = 0x040 // physical page number for queue, read/write
	VIRTIO_MMIO_QUEUE_NOTIFY     = 0x050 // write-only
	VIRTIO_MMIO_INTERRUPT_STATUS = 0x060 // read-only
	VIRTIO_MMIO_INTERRUPT_ACK    = 0x064 // write-only
	VIRTIO_MMIO_STATUS           = 0x070 // read/write
)

// status register bits
const (
	VIRTIO_CONFIG_S_ACKNOWLEDGE = 1
	VIRTIO_CONFIG_S_DRIVER      = 2
	VIRTIO_CONFIG_S_DRIVER_OK   = 4
	VIRTIO_CONFIG_S_FEATURES_OK = 8
)

// device feature bits
const (
	VIRTIO_BLK_F_RO             = 5
	VIRTIO_BLK_F_SCSI           = 7
	VIRTIO_BLK_F_CONFIG_WCE     = 11
	VIRTIO_BLK_F_MQ             = 12
	VIRTIO_F_ANY_LAYOUT         = 27
	VIRTIO_RING_F_INDIRECT_DESC = 28
	VIRTIO_RING_F_EVENT_IDX     = 29
)

const (
	VRING_DESC_F_NEXT  = 1
	VRING_DESC_F_WRITE = 2

	VIRTIO_BLK_T_IN  = 0
	VIRTIO_BLK_T_OUT = 1

	VIRTIO_BLK_S_OK     = 0
	VIRTIO_BLK_S_IOERR  = 1
	VIRTIO_BLK_S_UNSUPP = 2

	SECTORSZ = 512
)

const virtio_qmax = 8

// a legacy virtio block device. it fetches requests from the avail ring in
// guest RAM, performs them against its backing store, and posts completions
// to the used ring before raising its interrupt.
type Virtioblk_t struct {
	sync.Mutex
	ram     *Ram_t
	disk    Backing_i
	irq     func()
	status  uint32
	dfeat   uint32
	pgsz    uint32
	qnum    uint32
	qpfn    uint32
	isr     uint32
	lastav  uint16
	usedidx uint16

	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	// test hook: while held, fetched requests are not completed
	held  bool
	heldc *sync.Cond
	// requests fetched from the avail ring and not yet completed
	inflight int
	Nreq     int
}

func mkVirtioblk(ram *Ram_t, disk Backing_i, irq func()) *Virtioblk_t {
	v := &Virtioblk_t{ram: ram, disk: disk, irq: irq}
	v.dfeat = 1<<VIRTIO_BLK_F_SCSI | 1<<VIRTIO_BLK_F_CONFIG_WCE |
		1<<VIRTIO_F_ANY_LAYOUT | 1<<VIRTIO_RING_F_INDIRECT_DESC |
		1<<VIRTIO_RING_F_EVENT_IDX
	v.kick = make(chan struct{}, 1)
	v.stop = make(chan struct{})
	v.heldc = sync.NewCond(&v.Mutex)
	return v
}

func (v *Virtioblk_t) Read32(off uint64) uint32 {
	v.Lock()
	defer v.Unlock()
	switch off {
	case VIRTIO_MMIO_MAGIC_VALUE:
		return 0x74726976
	case VIRTIO_MMIO_VERSION:
		return 1
	case VIRTIO_MMIO_DEVICE_ID:
		if v.disk == nil {
			return 0
		}
		return 2
	case VIRTIO_MMIO_VENDOR_ID:
		return 0x554d4551
	case VIRTIO_MMIO_DEVICE_FEATURES:
		return v.dfeat
	case VIRTIO_MMIO_QUEUE_NUM_MAX:
		return virtio_qmax
	case VIRTIO_MMIO_QUEUE_PFN:
		return v.qpfn
	case VIRTIO_MMIO_INTERRUPT_STATUS:
		return v.isr
	case VIRTIO_MMIO_STATUS:
		return v.status
	}
	return 0
}

func (v *Virtioblk_t) Write32(off uint64, val uint32) {
	v.Lock()
	defer v.Unlock()
	switch off {
	case VIRTIO_MMIO_DRIVER_FEATURES:
		if val&^v.dfeat != 0 {
			panic("virtio: driver accepted unoffered features")
		}
	case VIRTIO_MMIO_GUEST_PAGE_SIZE:
		v.pgsz = val
	case VIRTIO_MMIO_QUEUE_SEL:
		if val != 0 {
			panic("virtio: only queue 0")
		}
	case VIRTIO_MMIO_QUEUE_NUM:
		if val > virtio_qmax {
			panic("virtio: queue too long")
		}
		v.qnum = val
	case VIRTIO_MMIO_QUEUE_PFN:
		v.qpfn = val
		v.lastav, v.usedidx = 0, 0
	case VIRTIO_MMIO_QUEUE_NOTIFY:
		select {
		case v.kick <- struct{}{}:
		default:
		}
	case VIRTIO_MMIO_INTERRUPT_ACK:
		v.isr &^= val
	case VIRTIO_MMIO_STATUS:
		v.status = val
	}
}

func (v *Virtioblk_t) qbase() uint64 {
	return uint64(v.qpfn) * uint64(v.pgsz)
}

func (v *Virtioblk_t) start() {
	v.wg.Add(1)
	go v.run()
}

func (v *Virtioblk_t) halt() {
	close(v.stop)
	v.Lock()
	v.held = false
	v.heldc.Broadcast()
	v.Unlock()
	v.wg.Wait()
}

// Hold makes the device keep fetched requests pending until Unhold.
func (v *Virtioblk_t) Hold() {
	v.Lock()
	v.held = true
	v.Unlock()
}

func (v *Virtioblk_t) Unhold() {
	v.Lock()
	v.held = false
	v.heldc.Broadcast()
	v.Unlock()
}

// the number of requests the device fetched and has not completed.
func (v *Virtioblk_t) Inflight() int {
	v.Lock()
	defer v.Unlock()
	return v.inflight
}

func (v *Virtioblk_t) run() {
	defer v.wg.Done()
	for {
		select {
		case <-v.kick:
		case <-v.stop:
			return
		}
		v.drain()
	}
}

func (v *Virtioblk_t) stopped() bool {
	select {
	case <-v.stop:
		return true
	default:
		return false
	}
}

type vreq_t struct {
	head uint16
	typ  uint32
	sec  uint64
	data uint64
	dlen uint32
	dwr  bool
	stat uint64
	ok   bool
}

// processes every request published in the avail ring.
func (v *Virtioblk_t) drain() {
	v.Lock()
	if v.status&VIRTIO_CONFIG_S_DRIVER_OK == 0 || v.qpfn == 0 {
		v.Unlock()
		return
	}
	base := v.qbase()
	num := uint64(v.qnum)
	v.Unlock()

	avail := base + num*16
	for {
		aidx := uint16(v.ram.Load32(avail) >> 16)
		v.Lock()
		if v.lastav == aidx {
			v.Unlock()
			return
		}
		slot := uint64(v.lastav) % num
		v.lastav++
		v.inflight++
		v.Nreq++
		v.Unlock()
		ring := v.ram.Slice(avail+4+2*slot, 2)
		head := binary.LittleEndian.Uint16(ring)
		r := v.fetch(base, num, head)

		v.Lock()
		for v.held {
			v.heldc.Wait()
		}
		v.Unlock()
		if v.stopped() {
			return
		}
		v.perform(r)
		v.complete(base, num, r)
	}
}

func (v *Virtioblk_t) desc(base uint64, i uint16) (uint64, uint32, uint16, uint16) {
	d := v.ram.Slice(base+16*uint64(i), 16)
	addr := binary.LittleEndian.Uint64(d[0:])
	l := binary.LittleEndian.Uint32(d[8:])
	fl := binary.LittleEndian.Uint16(d[12:])
	nx := binary.LittleEndian.Uint16(d[14:])
	return addr, l, fl, nx
}

func (v *Virtioblk_t) fetch(base, num uint64, head uint16) *vreq_t {
	r := &vreq_t{head: head}
	if uint64(head) >= num {
		panic("virtio: bad head descriptor")
	}
	a0, l0, f0, n0 := v.desc(base, head)
	if l0 < 16 || f0&VRING_DESC_F_NEXT == 0 {
		panic("virtio: bad request header")
	}
	h := v.ram.Slice(a0, 16)
	r.typ = binary.LittleEndian.Uint32(h[0:])
	r.sec = binary.LittleEndian.Uint64(h[8:])
	a1, l1, f1, n1 := v.desc(base, n0)
	if f1&VRING_DESC_F_NEXT == 0 {
		panic("virtio: missing status descriptor")
	}
	r.data, r.dlen, r.dwr = a1, l1, f1&VRING_DESC_F_WRITE != 0
	a2, l2, f2, _ := v.desc(base, n1)
	if l2 < 1 || f2&VRING_DESC_F_WRITE == 0 {
		panic("virtio: bad status descriptor")
	}
	r.stat = a2
	return r
}

func (v *Virtioblk_t) perform(r *vreq_t) {
	off := int64(r.sec) * SECTORSZ
	if r.dlen%SECTORSZ != 0 || off+int64(r.dlen) > v.disk.Size() {
		return
	}
	buf := v.ram.Slice(r.data, int(r.dlen))
	switch r.typ {
	case VIRTIO_BLK_T_IN:
		if !r.dwr {
			return
		}
		if _, err := v.disk.ReadAt(buf, off); err != nil {
			fmt.Printf("virtio: read sector %d: %v\n", r.sec, err)
			return
		}
	case VIRTIO_BLK_T_OUT:
		if r.dwr {
			return
		}
		if _, err := v.disk.WriteAt(buf, off); err != nil {
			fmt.Printf("virtio: write sector %d: %v\n", r.sec, err)
			return
		}
	default:
		return
	}
	r.ok = true
}

func (v *Virtioblk_t) complete(base, num uint64, r *vreq_t) {
	st := v.ram.Slice(r.stat, 1)
	if r.ok {
		st[0] = VIRTIO_BLK_S_OK
	} else {
		st[0] = VIRTIO_BLK_S_IOERR
	}
	used := base + riscv.PGSIZE
	v.Lock()
	slot := uint64(v.usedidx) % num
	e := v.ram.Slice(used+4+8*slot, 8)
	binary.LittleEndian.PutUint32(e[0:], uint32(r.head))
	binary.LittleEndian.PutUint32(e[4:], r.dlen)
	v.usedidx++
	v.ram.Store32(used, uint32(v.usedidx)<<16)
	v.isr |= 1
	v.inflight--
	v.Unlock()
	v.irq()
}
