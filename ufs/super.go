package ufs

import "rv6/bio"
import "rv6/fs"
import "rv6/util"

// Disk layout:
// [ boot block | super block | log | inode blocks | free bit map | data blocks ]
//
// mkfs computes the super block and builds an initial file system. The
// super block describes the disk layout.
type Superblock_t struct {
	Data []uint8
}

const (
	sb_magic = iota
	// size of file system image (blocks)
	sb_size
	// number of data blocks
	sb_nblocks
	sb_ninodes
	// number of log blocks, header included
	sb_nlog
	// block number of first log block
	sb_logstart
	// block number of first inode block
	sb_inodestart
	// block number of first free map block
	sb_bmapstart
)

// bitmap bits per block
const BPB = bio.BSIZE * 8

func fieldr(d []uint8, field int) int {
	return util.Readn(d, 4, field*4)
}

func fieldw(d []uint8, field int, val int) {
	util.Writen(d, 4, field*4, val)
}

func (sb *Superblock_t) Magic() int      { return fieldr(sb.Data, sb_magic) }
func (sb *Superblock_t) Size() int       { return fieldr(sb.Data, sb_size) }
func (sb *Superblock_t) Nblocks() int    { return fieldr(sb.Data, sb_nblocks) }
func (sb *Superblock_t) Ninodes() int    { return fieldr(sb.Data, sb_ninodes) }
func (sb *Superblock_t) Nlog() int       { return fieldr(sb.Data, sb_nlog) }
func (sb *Superblock_t) Logstart() int   { return fieldr(sb.Data, sb_logstart) }
func (sb *Superblock_t) Inodestart() int { return fieldr(sb.Data, sb_inodestart) }
func (sb *Superblock_t) Bmapstart() int  { return fieldr(sb.Data, sb_bmapstart) }

func (sb *Superblock_t) SetMagic(v int)      { fieldw(sb.Data, sb_magic, v) }
func (sb *Superblock_t) SetSize(v int)       { fieldw(sb.Data, sb_size, v) }
func (sb *Superblock_t) SetNblocks(v int)    { fieldw(sb.Data, sb_nblocks, v) }
func (sb *Superblock_t) SetNinodes(v int)    { fieldw(sb.Data, sb_ninodes, v) }
func (sb *Superblock_t) SetNlog(v int)       { fieldw(sb.Data, sb_nlog, v) }
func (sb *Superblock_t) SetLogstart(v int)   { fieldw(sb.Data, sb_logstart, v) }
func (sb *Superblock_t) SetInodestart(v int) { fieldw(sb.Data, sb_inodestart, v) }
func (sb *Superblock_t) SetBmapstart(v int)  { fieldw(sb.Data, sb_bmapstart, v) }

// block containing inode i
func (sb *Superblock_t) Iblock(i int) int {
	return i/fs.IPB + sb.Inodestart()
}

// block of free map containing bit for block b
func (sb *Superblock_t) Bblock(b int) int {
	return b/BPB + sb.Bmapstart()
}
