package lfs

import "fmt"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/util"

const nmeta = 4

// builds images in memory. blocks are laid down in order, one run per
// segment, and both checkpoints are written at the end.
type mklfs_t struct {
	img       []uint8
	sb        Superblock_t
	imap      []int
	freeinode int
	// next block to hand out, counted from the first segment
	next int
	ents [][]Sument_t
}

func (m *mklfs_t) block(bno int) []uint8 {
	return m.img[bno*bio.BSIZE : (bno+1)*bio.BSIZE]
}

func (m *mklfs_t) balloc(ent Sument_t) (int, error) {
	// skip the summary block
	if m.next%SEGSIZE == 0 {
		m.next++
	}
	segno := m.next / SEGSIZE
	if segno >= m.sb.Nsegments() {
		return 0, fmt.Errorf("out of blocks")
	}
	for len(m.ents) <= segno {
		m.ents = append(m.ents, nil)
	}
	m.ents[segno] = append(m.ents[segno], ent)
	b := m.sb.Segstart() + m.next
	m.next++
	return b, nil
}

// writes a new copy of inode inum.
func (m *mklfs_t) winode(inum int, di *fs.Dinode_t) error {
	b, err := m.balloc(Sument_t{Kind: Inode, Inum: defs.Inum_t(inum)})
	if err != nil {
		return err
	}
	di.Encode(m.block(b))
	m.imap[inum] = b
	return nil
}

// writes a file's data and then its inode.
func (m *mklfs_t) wfile(inum int, di *fs.Dinode_t, data []uint8) error {
	if len(data) > fs.MAXFILE*bio.BSIZE {
		return fmt.Errorf("file too big")
	}
	for fbn := 0; fbn*bio.BSIZE < len(data); fbn++ {
		b, err := m.balloc(Sument_t{Kind: DataBlock, Inum: defs.Inum_t(inum),
			Blockno: fbn})
		if err != nil {
			return err
		}
		copy(m.block(b), data[fbn*bio.BSIZE:])
		if fbn < fs.NDIRECT {
			di.Addrs[fbn] = uint32(b)
			continue
		}
		if di.Addrs[fs.NDIRECT] == 0 {
			ib, err := m.balloc(Sument_t{Kind: IndirectMap, Inum: defs.Inum_t(inum)})
			if err != nil {
				return err
			}
			di.Addrs[fs.NDIRECT] = uint32(ib)
		}
		ind := m.block(int(di.Addrs[fs.NDIRECT]))
		util.Writen(ind, 4, 4*(fbn-fs.NDIRECT), b)
	}
	di.Size = uint32(len(data))
	return m.winode(inum, di)
}

func (m *mklfs_t) wimap() ([IMAPSIZE]int, error) {
	var ret [IMAPSIZE]int
	for i := 0; i*NENTRY < m.sb.Ninodes(); i++ {
		b, err := m.balloc(Sument_t{Kind: Imap, Blockno: i})
		if err != nil {
			return ret, err
		}
		d := m.block(b)
		for j := 0; j < NENTRY && i*NENTRY+j < m.sb.Ninodes(); j++ {
			util.Writen(d, 4, 4*j, m.imap[i*NENTRY+j])
		}
		ret[i] = b
	}
	return ret, nil
}

func (m *mklfs_t) wsummaries() {
	for segno, ents := range m.ents {
		sum := Summary_t{Data: m.block(m.sb.Segblock(segno, 0))}
		sum.Write(ents)
	}
}

func (m *mklfs_t) wcheckpoint(imap [IMAPSIZE]int) {
	ck := &Checkpoint_t{Data: m.block(m.sb.Checkpoint1())}
	ck.SetTimestamp(1)
	for i, a := range imap {
		ck.SetImap(i, a)
	}
	for segno := range m.ents {
		ck.SetSegused(segno, true)
	}
	// continue in the last segment if it has room
	last := len(m.ents) - 1
	off := m.next - last*SEGSIZE
	if off+1 < SEGSIZE {
		ck.SetCurseg(last)
		ck.SetCuroff(off)
	} else {
		ck.SetCurseg(m.sb.Nsegments())
	}
	// the second region stays zero, which makes the first current.
}

// returns an image of nblocks blocks holding ninodes inodes whose root
// directory contains ents.
func Mkimage(nblocks, ninodes int, ents []fs.Mkent_t) ([]uint8, error) {
	nsegs := (nblocks - nmeta) / SEGSIZE
	if nsegs < 2 {
		return nil, fmt.Errorf("%v blocks is too small", nblocks)
	}
	if nsegs > MAXSEGS {
		return nil, fmt.Errorf("%v blocks is too large", nblocks)
	}
	if ninodes > MAXINODES {
		return nil, fmt.Errorf("at most %v inodes", MAXINODES)
	}
	if len(ents)+2 > ninodes {
		return nil, fmt.Errorf("too many files for %v inodes", ninodes)
	}
	m := &mklfs_t{img: make([]uint8, nblocks*bio.BSIZE),
		imap: make([]int, ninodes)}
	m.sb.Data = m.block(1)
	m.sb.SetMagic(fs.FSMAGIC)
	m.sb.SetSize(nblocks)
	m.sb.SetNblocks(nsegs * SEGSIZE)
	m.sb.SetNsegments(nsegs)
	m.sb.SetNinodes(ninodes)
	m.sb.SetCheckpoint1(2)
	m.sb.SetCheckpoint2(3)
	m.sb.SetSegstart(nmeta)

	dents, err := fs.Rootdir(ents)
	if err != nil {
		return nil, err
	}
	for i, e := range ents {
		inum := int(fs.ROOTINO) + 1 + i
		di := fs.Dinode_t{Type: e.Type, Nlink: 1}
		if e.Type == defs.T_DEVICE {
			di.Major = e.Major
			di.Minor = e.Minor
			err = m.winode(inum, &di)
		} else {
			err = m.wfile(inum, &di, e.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %v", e.Name, err)
		}
	}
	root := fs.Dinode_t{Type: defs.T_DIR, Nlink: 1}
	// the root directory fills whole blocks
	n := util.Roundup(len(dents), bio.BSIZE)
	rd := make([]uint8, n)
	copy(rd, dents)
	if err := m.wfile(int(fs.ROOTINO), &root, rd); err != nil {
		return nil, err
	}
	imap, err := m.wimap()
	if err != nil {
		return nil, err
	}
	m.wsummaries()
	m.wcheckpoint(imap)
	return m.img, nil
}
