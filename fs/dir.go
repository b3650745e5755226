package fs

import "rv6/bio"
import "rv6/defs"
import "rv6/lock"
import "rv6/ustr"
import "rv6/util"
import "rv6/vm"

// directory data format
// 0-1,  inode number; 0 is an empty entry
// 2-15, file name characters, NUL-padded
// ...repeated, totaling NDIRENTS times per block
type Dirdata_t struct {
	Data []uint8
}

const (
	DIRSIZ   = ustr.DIRSIZ
	DIRENTSZ = 2 + DIRSIZ
	NDIRENTS = bio.BSIZE / DIRENTSZ
)

func (dir *Dirdata_t) doffset(didx int, off int) int {
	if didx < 0 || DIRENTSZ*(didx+1) > len(dir.Data) {
		panic("bad dirent index")
	}
	return DIRENTSZ*didx + off
}

func (dir *Dirdata_t) Filename(didx int) ustr.Ustr {
	st := dir.doffset(didx, 2)
	return ustr.MkUstrSlice(dir.Data[st : st+DIRSIZ])
}

func (dir *Dirdata_t) Inum(didx int) defs.Inum_t {
	return defs.Inum_t(util.Readn(dir.Data, 2, dir.doffset(didx, 0)))
}

// names longer than DIRSIZ are truncated.
func (dir *Dirdata_t) W_filename(didx int, fn ustr.Ustr) {
	st := dir.doffset(didx, 2)
	sl := dir.Data[st : st+DIRSIZ]
	for i := range sl {
		if i >= len(fn) {
			sl[i] = 0
		} else {
			sl[i] = fn[i]
		}
	}
}

func (dir *Dirdata_t) W_inum(didx int, inum defs.Inum_t) {
	util.Writen(dir.Data, 2, dir.doffset(didx, 0), int(inum))
}

// reads the directory entry at byte offset off.
func (dp *Inode_t) readent(k lock.Kctx_i, off int, dd *Dirdata_t) {
	dd.Data = make([]uint8, DIRENTSZ)
	n, err := dp.Readi(k, vm.Mkfakeubuf(dd.Data), off)
	if n != DIRENTSZ || err != 0 {
		panic("dirent read")
	}
}

// looks for a directory entry in a directory. if found, returns a reference
// to the inode and the byte offset of the entry. caller must hold dp's lock.
func (dp *Inode_t) Dirlookup(k lock.Kctx_i, name ustr.Ustr) (*Iref_t, int, defs.Err_t) {
	if dp.Type != defs.T_DIR {
		panic("dirlookup not DIR")
	}
	var dd Dirdata_t
	for off := 0; off < int(dp.Size); off += DIRENTSZ {
		dp.readent(k, off, &dd)
		inum := dd.Inum(0)
		if inum == 0 {
			continue
		}
		if name.Direq(dd.Filename(0)) {
			return dp.fs.Iget(k, inum), off, 0
		}
	}
	return nil, 0, -defs.ENOENT
}

// writes a new directory entry (name, inum) into the directory dp.
func (dp *Inode_t) Dirlink(k lock.Kctx_i, name ustr.Ustr, inum defs.Inum_t) defs.Err_t {
	// check that name is not present.
	if ip, _, err := dp.Dirlookup(k, name); err == 0 {
		ip.Put(k)
		return -defs.EEXIST
	}

	// look for an empty dirent.
	var dd Dirdata_t
	off := 0
	for ; off < int(dp.Size); off += DIRENTSZ {
		dp.readent(k, off, &dd)
		if dd.Inum(0) == 0 {
			break
		}
	}
	dd.Data = make([]uint8, DIRENTSZ)
	dd.W_filename(0, name)
	dd.W_inum(0, inum)
	n, err := dp.Writei(k, vm.Mkfakeubuf(dd.Data), off)
	if err != 0 {
		return err
	}
	if n != DIRENTSZ {
		return -defs.ENOSPC
	}
	return 0
}

// clears the directory entry at byte offset off.
func (dp *Inode_t) Dirclear(k lock.Kctx_i, off int) {
	ent := make([]uint8, DIRENTSZ)
	n, err := dp.Writei(k, vm.Mkfakeubuf(ent), off)
	if n != DIRENTSZ || err != 0 {
		panic("unlink: writei")
	}
}

// is the directory dp empty except for "." and ".." ?
func (dp *Inode_t) Isdirempty(k lock.Kctx_i) bool {
	var dd Dirdata_t
	for off := 2 * DIRENTSZ; off < int(dp.Size); off += DIRENTSZ {
		dp.readent(k, off, &dd)
		if dd.Inum(0) != 0 {
			return false
		}
	}
	return true
}
