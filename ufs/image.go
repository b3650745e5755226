package ufs

import "fmt"

import "rv6/bio"
import "rv6/defs"
import "rv6/fs"
import "rv6/util"

// Disk image layout:
//   boot block
//   superblock
//   log header and log blocks
//   inode blocks
//   block map
//   data blocks

// builds images in memory, the way mkfs does.
type mkufs_t struct {
	img       []uint8
	sb        Superblock_t
	freeinode int
	freeblock int
}

func (m *mkufs_t) block(bno int) []uint8 {
	return m.img[bno*bio.BSIZE : (bno+1)*bio.BSIZE]
}

func (m *mkufs_t) ialloc(typ int16) (int, error) {
	if m.freeinode >= m.sb.Ninodes() {
		return 0, fmt.Errorf("out of inodes")
	}
	inum := m.freeinode
	m.freeinode++
	di := fs.Dinode_t{Type: typ, Nlink: 1}
	m.winode(inum, &di)
	return inum, nil
}

func (m *mkufs_t) rinode(inum int, di *fs.Dinode_t) {
	di.Decode(m.block(m.sb.Iblock(inum))[dinodeoff(defs.Inum_t(inum)):])
}

func (m *mkufs_t) winode(inum int, di *fs.Dinode_t) {
	di.Encode(m.block(m.sb.Iblock(inum))[dinodeoff(defs.Inum_t(inum)):])
}

func (m *mkufs_t) balloc() (int, error) {
	if m.freeblock >= m.sb.Size() {
		return 0, fmt.Errorf("out of blocks")
	}
	b := m.freeblock
	m.freeblock++
	return b, nil
}

// appends data to the end of inode inum.
func (m *mkufs_t) iappend(inum int, data []uint8) error {
	var di fs.Dinode_t
	m.rinode(inum, &di)
	off := int(di.Size)
	for len(data) > 0 {
		fbn := off / bio.BSIZE
		if fbn >= fs.MAXFILE {
			return fmt.Errorf("file too big")
		}
		var addr int
		if fbn < fs.NDIRECT {
			if di.Addrs[fbn] == 0 {
				b, err := m.balloc()
				if err != nil {
					return err
				}
				di.Addrs[fbn] = uint32(b)
			}
			addr = int(di.Addrs[fbn])
		} else {
			if di.Addrs[fs.NDIRECT] == 0 {
				b, err := m.balloc()
				if err != nil {
					return err
				}
				di.Addrs[fs.NDIRECT] = uint32(b)
			}
			ind := m.block(int(di.Addrs[fs.NDIRECT]))
			i := 4 * (fbn - fs.NDIRECT)
			if util.Readn(ind, 4, i) == 0 {
				b, err := m.balloc()
				if err != nil {
					return err
				}
				util.Writen(ind, 4, i, b)
			}
			addr = util.Readn(ind, 4, i)
		}
		s := off % bio.BSIZE
		n := copy(m.block(addr)[s:], data)
		off += n
		data = data[n:]
	}
	di.Size = uint32(off)
	m.winode(inum, &di)
	return nil
}

// marks every block before freeblock in use.
func (m *mkufs_t) wbitmap() error {
	used := m.freeblock
	if used > BPB*(m.sb.Size()/BPB+1) {
		return fmt.Errorf("bitmap too small")
	}
	for i := 0; i < used; i++ {
		bm := m.block(m.sb.Bblock(i))
		bi := i % BPB
		bm[bi/8] |= 1 << (bi % 8)
	}
	return nil
}

// returns an image of nblocks blocks holding ninodes inodes whose root
// directory contains ents.
func Mkimage(nblocks, ninodes int, ents []fs.Mkent_t) ([]uint8, error) {
	nlog := defs.LOGSIZE + 1
	ninodeblocks := ninodes/fs.IPB + 1
	nbitmap := nblocks/BPB + 1
	nmeta := 2 + nlog + ninodeblocks + nbitmap
	if nmeta >= nblocks {
		return nil, fmt.Errorf("%v blocks is too small for %v inodes", nblocks, ninodes)
	}
	if len(ents)+2 > ninodes {
		return nil, fmt.Errorf("too many files for %v inodes", ninodes)
	}
	m := &mkufs_t{img: make([]uint8, nblocks*bio.BSIZE)}
	m.sb.Data = m.block(1)
	m.sb.SetMagic(fs.FSMAGIC)
	m.sb.SetSize(nblocks)
	m.sb.SetNblocks(nblocks - nmeta)
	m.sb.SetNinodes(ninodes)
	m.sb.SetNlog(nlog)
	m.sb.SetLogstart(2)
	m.sb.SetInodestart(2 + nlog)
	m.sb.SetBmapstart(2 + nlog + ninodeblocks)
	m.freeinode = 1
	m.freeblock = nmeta

	root, err := m.ialloc(defs.T_DIR)
	if err != nil {
		return nil, err
	}
	if root != int(fs.ROOTINO) {
		panic("root inode")
	}
	dents, err := fs.Rootdir(ents)
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		inum, err := m.ialloc(e.Type)
		if err != nil {
			return nil, err
		}
		if e.Type == defs.T_DEVICE {
			var di fs.Dinode_t
			m.rinode(inum, &di)
			di.Major = e.Major
			di.Minor = e.Minor
			m.winode(inum, &di)
		} else if err := m.iappend(inum, e.Data); err != nil {
			return nil, fmt.Errorf("%v: %v", e.Name, err)
		}
	}
	if err := m.iappend(root, dents); err != nil {
		return nil, err
	}
	// fix size of root inode dir
	var di fs.Dinode_t
	m.rinode(root, &di)
	di.Size = uint32(util.Roundup(int(di.Size), bio.BSIZE))
	m.winode(root, &di)
	if err := m.wbitmap(); err != nil {
		return nil, err
	}
	return m.img, nil
}
