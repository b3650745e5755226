// Package virtio is the driver for qemu's legacy virtio-MMIO block device.
//
// The device and driver share three rings in physical memory: the
// descriptor table, the avail ring in which the driver publishes request
// chains, and the used ring in which the device reports completions.
package virtio

import "encoding/binary"
import "fmt"
import "time"

import "rv6/bio"
import "rv6/defs"
import "rv6/hw"
import "rv6/lock"
import "rv6/mem"
import "rv6/riscv"
import "rv6/stats"

const virtio_debug = false

// this many virtio descriptors. must be a power of two.
const NUM = 8

// pages the driver needs: the descriptor table and avail ring, the used
// ring, and the request headers and status bytes.
const NPAGES = 3

const (
	descsz = 16
	hdrsz  = 16
)

type dstats_t struct {
	Nreq      stats.Counter_t
	Nwaitdesc stats.Counter_t
	Nintr     stats.Counter_t
}

type Disk_t struct {
	// the lock protecting everything below. its wait channel is where
	// requesters wait for free descriptors.
	lock.Sleepablelock_t
	bus  *hw.Bus_t
	base uint64
	phys *mem.Physmem_t
	// the descriptor table starts here; the avail ring follows it and the
	// used ring starts one page later.
	pages mem.Pa_t
	// request headers, one per descriptor, then a status byte per
	// descriptor.
	reqs mem.Pa_t
	// is a descriptor free?
	free [NUM]bool
	// next avail index to publish
	avail_idx uint16
	// we've looked this far in used.
	used_idx uint16
	// the requests in flight, indexed by the first descriptor of each
	// chain.
	info  [NUM]*bio.Bdev_req_t
	stats dstats_t
	lat   stats.Latency_t
}

func (d *Disk_t) r(reg uint64) uint32 {
	return d.bus.Read32(d.base + reg)
}

func (d *Disk_t) w(reg uint64, v uint32) {
	d.bus.Write32(d.base+reg, v)
}

// initializes the device at base. pages must be NPAGES contiguous frames.
func Init(bus *hw.Bus_t, base uint64, phys *mem.Physmem_t, pages mem.Pa_t) *Disk_t {
	d := &Disk_t{bus: bus, base: base, phys: phys, pages: pages,
		reqs: pages + 2*mem.PGSIZE}
	d.Init("virtio_disk")

	if d.r(hw.VIRTIO_MMIO_MAGIC_VALUE) != 0x74726976 ||
		d.r(hw.VIRTIO_MMIO_VERSION) != 1 ||
		d.r(hw.VIRTIO_MMIO_DEVICE_ID) != 2 ||
		d.r(hw.VIRTIO_MMIO_VENDOR_ID) != 0x554d4551 {
		panic("could not find virtio disk")
	}

	status := uint32(0)
	status |= hw.VIRTIO_CONFIG_S_ACKNOWLEDGE
	d.w(hw.VIRTIO_MMIO_STATUS, status)
	status |= hw.VIRTIO_CONFIG_S_DRIVER
	d.w(hw.VIRTIO_MMIO_STATUS, status)

	// negotiate features
	features := d.r(hw.VIRTIO_MMIO_DEVICE_FEATURES)
	features &^= 1 << hw.VIRTIO_BLK_F_RO
	features &^= 1 << hw.VIRTIO_BLK_F_SCSI
	features &^= 1 << hw.VIRTIO_BLK_F_CONFIG_WCE
	features &^= 1 << hw.VIRTIO_BLK_F_MQ
	features &^= 1 << hw.VIRTIO_F_ANY_LAYOUT
	features &^= 1 << hw.VIRTIO_RING_F_EVENT_IDX
	features &^= 1 << hw.VIRTIO_RING_F_INDIRECT_DESC
	d.w(hw.VIRTIO_MMIO_DRIVER_FEATURES, features)

	// tell device that feature negotiation is complete.
	status |= hw.VIRTIO_CONFIG_S_FEATURES_OK
	d.w(hw.VIRTIO_MMIO_STATUS, status)

	d.w(hw.VIRTIO_MMIO_GUEST_PAGE_SIZE, mem.PGSIZE)

	// initialize queue 0.
	d.w(hw.VIRTIO_MMIO_QUEUE_SEL, 0)
	max := d.r(hw.VIRTIO_MMIO_QUEUE_NUM_MAX)
	if max == 0 {
		panic("virtio disk has no queue 0")
	}
	if max < NUM {
		panic("virtio disk max queue too short")
	}
	d.w(hw.VIRTIO_MMIO_QUEUE_NUM, NUM)
	for i := 0; i < NPAGES; i++ {
		*mem.Pg2bytes(phys.Dmap(pages + mem.Pa_t(i*mem.PGSIZE))) = mem.Bytepg_t{}
	}
	d.w(hw.VIRTIO_MMIO_QUEUE_PFN, uint32(pages>>riscv.PGSHIFT))

	// all NUM descriptors start out unused.
	for i := range d.free {
		d.free[i] = true
	}

	// tell device we're completely ready.
	status |= hw.VIRTIO_CONFIG_S_DRIVER_OK
	d.w(hw.VIRTIO_MMIO_STATUS, status)
	return d
}

func (d *Disk_t) desc(i int) []uint8 {
	return d.phys.Dmaplen(d.pages+mem.Pa_t(i*descsz), descsz)
}

func (d *Disk_t) setdesc(i int, addr mem.Pa_t, l int, flags uint16, next int) {
	b := d.desc(i)
	binary.LittleEndian.PutUint64(b[0:], uint64(addr))
	binary.LittleEndian.PutUint32(b[8:], uint32(l))
	binary.LittleEndian.PutUint16(b[12:], flags)
	binary.LittleEndian.PutUint16(b[14:], uint16(next))
}

func (d *Disk_t) next(i int) (int, bool) {
	b := d.desc(i)
	fl := binary.LittleEndian.Uint16(b[12:])
	return int(binary.LittleEndian.Uint16(b[14:])), fl&hw.VRING_DESC_F_NEXT != 0
}

func (d *Disk_t) availpa() mem.Pa_t {
	return d.pages + NUM*descsz
}

func (d *Disk_t) usedpa() mem.Pa_t {
	return d.pages + mem.PGSIZE
}

func (d *Disk_t) hdrpa(i int) mem.Pa_t {
	return d.reqs + mem.Pa_t(i*hdrsz)
}

func (d *Disk_t) statuspa(i int) mem.Pa_t {
	return d.reqs + NUM*hdrsz + mem.Pa_t(i)
}

// finds a free descriptor, marks it non-free, returns its index.
func (d *Disk_t) alloc_desc() (int, bool) {
	for i := range d.free {
		if d.free[i] {
			d.free[i] = false
			return i, true
		}
	}
	return 0, false
}

// marks a descriptor as free.
func (d *Disk_t) free_desc(k lock.Kctx_i, i int) {
	if i >= NUM {
		panic("free_desc 1")
	}
	if d.free[i] {
		panic("free_desc 2")
	}
	d.setdesc(i, 0, 0, 0, 0)
	d.free[i] = true
	d.Wakeup(k)
}

// frees a chain of descriptors.
func (d *Disk_t) free_chain(k lock.Kctx_i, i int) {
	for {
		nxt, more := d.next(i)
		d.free_desc(k, i)
		if !more {
			break
		}
		i = nxt
	}
}

// allocates three descriptors (they need not be contiguous). disk
// transfers always use three descriptors.
func (d *Disk_t) alloc3_desc(idx *[3]int) bool {
	for i := 0; i < 3; i++ {
		n, ok := d.alloc_desc()
		if !ok {
			for j := 0; j < i; j++ {
				d.free[idx[j]] = true
			}
			return false
		}
		idx[i] = n
	}
	return true
}

// the number of free descriptors.
func (d *Disk_t) Nfree(k lock.Kctx_i) int {
	d.Acquire(k)
	defer d.Release(k)
	n := 0
	for _, f := range d.free {
		if f {
			n++
		}
	}
	return n
}

// submits req and sleeps until the device completes it.
func (d *Disk_t) Rw(k lock.Kctx_i, req *bio.Bdev_req_t) {
	start := time.Now()
	sector := uint64(req.Blockno) * (defs.BSIZE / hw.SECTORSZ)

	d.Acquire(k)
	d.stats.Nreq.Inc()

	// legacy virtio block operations use three
	// descriptors: one for type/reserved/sector, one for the data, one
	// for a 1-byte status result.
	var idx [3]int
	for !d.alloc3_desc(&idx) {
		d.stats.Nwaitdesc.Inc()
		d.Sleep(k)
	}

	// format the three descriptors.
	hdr := d.phys.Dmaplen(d.hdrpa(idx[0]), hdrsz)
	typ := uint32(hw.VIRTIO_BLK_T_IN) // read the disk
	if req.Cmd == bio.BDEV_WRITE {
		typ = hw.VIRTIO_BLK_T_OUT // write the disk
	}
	binary.LittleEndian.PutUint32(hdr[0:], typ)
	binary.LittleEndian.PutUint32(hdr[4:], 0)
	binary.LittleEndian.PutUint64(hdr[8:], sector)

	d.setdesc(idx[0], d.hdrpa(idx[0]), hdrsz, hw.VRING_DESC_F_NEXT, idx[1])

	flags := uint16(hw.VRING_DESC_F_NEXT)
	if req.Cmd == bio.BDEV_READ {
		// device writes the buffer
		flags |= hw.VRING_DESC_F_WRITE
	}
	d.setdesc(idx[1], req.Pa, req.Len, flags, idx[2])

	// device writes 0 on success
	d.phys.Dmaplen(d.statuspa(idx[0]), 1)[0] = 0xff
	d.setdesc(idx[2], d.statuspa(idx[0]), 1, hw.VRING_DESC_F_WRITE, 0)

	// record the request for Intr.
	req.Disk = true
	d.info[idx[0]] = req

	// tell the device the first index in our chain of descriptors.
	slot := d.phys.Dmaplen(d.availpa()+4+mem.Pa_t(2*(d.avail_idx%NUM)), 2)
	binary.LittleEndian.PutUint16(slot, uint16(idx[0]))

	// the atomic store orders the ring entry before the index, and the
	// index before the notify.
	d.avail_idx++
	d.phys.Ram().Store32(uint64(d.availpa()), uint32(d.avail_idx)<<16)

	d.w(hw.VIRTIO_MMIO_QUEUE_NOTIFY, 0) // value is queue number

	if virtio_debug {
		fmt.Printf("virtio: %v block %v len %v desc %v\n", req.Cmd,
			req.Blockno, req.Len, idx)
	}

	// wait for Intr to say request has finished.
	for req.Disk {
		k.Sleep(&req.Wc, &d.Spinlock_t)
	}

	d.info[idx[0]] = nil
	d.free_chain(k, idx[0])
	d.Release(k)
	d.lat.Record(start)
}

// writes nblk consecutive blocks starting at bno from the contiguous
// physical memory at pa with one request.
func (d *Disk_t) Write_seq(k lock.Kctx_i, pa mem.Pa_t, nblk, bno int) {
	if nblk <= 0 || nblk > defs.SEGSIZE {
		panic("write_seq")
	}
	req := &bio.Bdev_req_t{Cmd: bio.BDEV_WRITE, Blockno: bno, Pa: pa,
		Len: nblk * defs.BSIZE}
	d.Rw(k, req)
}

// handles a disk interrupt: wakes the requesters whose requests the device
// has completed.
func (d *Disk_t) Intr(k lock.Kctx_i) {
	d.Acquire(k)
	d.stats.Nintr.Inc()

	// the device won't raise another interrupt until we tell it we've
	// seen this interrupt, which the following line does. this may race
	// with the device writing new entries to the "used" ring, in which
	// case we may process the new completion entries in this interrupt,
	// and have nothing to do in the next interrupt, which is harmless.
	d.w(hw.VIRTIO_MMIO_INTERRUPT_ACK, d.r(hw.VIRTIO_MMIO_INTERRUPT_STATUS)&0x3)

	// the device increments used.idx when it adds an entry to the used
	// ring. the atomic load orders it before the entries.
	ram := d.phys.Ram()
	for d.used_idx != uint16(ram.Load32(uint64(d.usedpa()))>>16) {
		e := d.phys.Dmaplen(d.usedpa()+4+mem.Pa_t(8*(d.used_idx%NUM)), 8)
		id := int(binary.LittleEndian.Uint32(e[0:]))

		if d.phys.Dmaplen(d.statuspa(id), 1)[0] != 0 {
			panic("virtio_disk_intr status")
		}
		req := d.info[id]
		if req == nil {
			panic("virtio_disk_intr: no request")
		}
		// disk is done with the request
		req.Disk = false
		k.Wakeup(&req.Wc)

		d.used_idx++
	}
	d.Release(k)
}

func (d *Disk_t) Stats() string {
	return "virtio:" + stats.Stats2String(&d.stats) + "\tlatency: " +
		d.lat.String() + "\n"
}
