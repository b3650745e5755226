package lfs

import "rv6/bio"
import "rv6/defs"
import "rv6/util"

// Disk layout:
// [ boot block | super block | checkpoint1 | checkpoint2 | segments ]
//
// Every segment holds SEGSIZE blocks, written as one or more runs. A run
// is a summary block followed by the blocks the summary describes. Inode
// blocks, data blocks, indirect blocks and imap blocks all live in runs;
// a checkpoint names the imap blocks, so the last checkpoint written
// defines the file system.
type Superblock_t struct {
	Data []uint8
}

const (
	sb_magic = iota
	// size of file system image (blocks)
	sb_size
	// number of segment blocks
	sb_nblocks
	sb_nsegments
	sb_ninodes
	sb_checkpoint1
	sb_checkpoint2
	// block number of the first segment
	sb_segstart
)

const SEGSIZE = defs.SEGSIZE

// imap entries per block
const NENTRY = bio.BSIZE / 4

// number of imap blocks a checkpoint names
const IMAPSIZE = 4

const MAXINODES = IMAPSIZE * NENTRY

func fieldr(d []uint8, field int) int {
	return util.Readn(d, 4, field*4)
}

func fieldw(d []uint8, field int, val int) {
	util.Writen(d, 4, field*4, val)
}

func (sb *Superblock_t) Magic() int       { return fieldr(sb.Data, sb_magic) }
func (sb *Superblock_t) Size() int        { return fieldr(sb.Data, sb_size) }
func (sb *Superblock_t) Nblocks() int     { return fieldr(sb.Data, sb_nblocks) }
func (sb *Superblock_t) Nsegments() int   { return fieldr(sb.Data, sb_nsegments) }
func (sb *Superblock_t) Ninodes() int     { return fieldr(sb.Data, sb_ninodes) }
func (sb *Superblock_t) Checkpoint1() int { return fieldr(sb.Data, sb_checkpoint1) }
func (sb *Superblock_t) Checkpoint2() int { return fieldr(sb.Data, sb_checkpoint2) }
func (sb *Superblock_t) Segstart() int    { return fieldr(sb.Data, sb_segstart) }

func (sb *Superblock_t) SetMagic(v int)       { fieldw(sb.Data, sb_magic, v) }
func (sb *Superblock_t) SetSize(v int)        { fieldw(sb.Data, sb_size, v) }
func (sb *Superblock_t) SetNblocks(v int)     { fieldw(sb.Data, sb_nblocks, v) }
func (sb *Superblock_t) SetNsegments(v int)   { fieldw(sb.Data, sb_nsegments, v) }
func (sb *Superblock_t) SetNinodes(v int)     { fieldw(sb.Data, sb_ninodes, v) }
func (sb *Superblock_t) SetCheckpoint1(v int) { fieldw(sb.Data, sb_checkpoint1, v) }
func (sb *Superblock_t) SetCheckpoint2(v int) { fieldw(sb.Data, sb_checkpoint2, v) }
func (sb *Superblock_t) SetSegstart(v int)    { fieldw(sb.Data, sb_segstart, v) }

// translates a segment number and block offset within it to a disk block
// number.
func (sb *Superblock_t) Segblock(segno, off int) int {
	return sb.Segstart() + segno*SEGSIZE + off
}

// Checkpoint block format:
// 0,  timestamp; the region with the larger one is current
// 4,  segment being written
// 8,  offset in that segment where the next run starts
// 12, IMAPSIZE imap block addresses
// ..., segment usage bitmap to the end of the block
type Checkpoint_t struct {
	Data []uint8
}

const (
	ck_timestamp = 0
	ck_curseg    = 4
	ck_curoff    = 8
	ck_imap      = 12
	ck_segtable  = ck_imap + 4*IMAPSIZE
	// the most segments a checkpoint can track
	MAXSEGS = (bio.BSIZE - ck_segtable) * 8
)

func (ck *Checkpoint_t) Timestamp() int { return util.Readn(ck.Data, 4, ck_timestamp) }
func (ck *Checkpoint_t) Curseg() int    { return util.Readn(ck.Data, 4, ck_curseg) }
func (ck *Checkpoint_t) Curoff() int    { return util.Readn(ck.Data, 4, ck_curoff) }

func (ck *Checkpoint_t) Imap(i int) int {
	return util.Readn(ck.Data, 4, ck_imap+4*i)
}

func (ck *Checkpoint_t) Segused(segno int) bool {
	return ck.Data[ck_segtable+segno/8]&(1<<(segno%8)) != 0
}

func (ck *Checkpoint_t) SetTimestamp(v int) { util.Writen(ck.Data, 4, ck_timestamp, v) }
func (ck *Checkpoint_t) SetCurseg(v int)    { util.Writen(ck.Data, 4, ck_curseg, v) }
func (ck *Checkpoint_t) SetCuroff(v int)    { util.Writen(ck.Data, 4, ck_curoff, v) }

func (ck *Checkpoint_t) SetImap(i, addr int) {
	util.Writen(ck.Data, 4, ck_imap+4*i, addr)
}

func (ck *Checkpoint_t) SetSegused(segno int, used bool) {
	m := uint8(1 << (segno % 8))
	if used {
		ck.Data[ck_segtable+segno/8] |= m
	} else {
		ck.Data[ck_segtable+segno/8] &^= m
	}
}

type Blktype_t int

const (
	Empty Blktype_t = iota
	Inode
	DataBlock
	IndirectMap
	Imap
	nblktype
)

func (t Blktype_t) String() string {
	switch t {
	case Empty:
		return "empty"
	case Inode:
		return "inode"
	case DataBlock:
		return "data"
	case IndirectMap:
		return "indirect"
	case Imap:
		return "imap"
	}
	return "bad"
}

// what a summary records about one block of its run. block_no is the
// logical block for data blocks and the imap block index for imap blocks.
type Sument_t struct {
	Kind    Blktype_t
	Inum    defs.Inum_t
	Blockno int
}

// Summary block format:
// 0, SUMMAGIC
// 4, number of entries
// 8, entries of {kind, inum, block_no}, 12 bytes each
type Summary_t struct {
	Data []uint8
}

const SUMMAGIC = 0x5e65a51c

const (
	sum_magic = 0
	sum_size  = 4
	sum_ents  = 8
	sumentsz  = 12
)

func (s *Summary_t) Valid() bool {
	n := util.Readn(s.Data, 4, sum_size)
	return util.Readn(s.Data, 4, sum_magic) == SUMMAGIC && n > 0 && n < SEGSIZE
}

func (s *Summary_t) Size() int {
	return util.Readn(s.Data, 4, sum_size)
}

func (s *Summary_t) Ent(i int) Sument_t {
	o := sum_ents + i*sumentsz
	kind := Blktype_t(util.Readn(s.Data, 4, o))
	if kind < 0 || kind >= nblktype {
		kind = Empty
	}
	return Sument_t{Kind: kind, Inum: defs.Inum_t(util.Readn(s.Data, 4, o+4)),
		Blockno: util.Readn(s.Data, 4, o+8)}
}

// writes a summary for ents, which replaces the whole block.
func (s *Summary_t) Write(ents []Sument_t) {
	for i := range s.Data {
		s.Data[i] = 0
	}
	util.Writen(s.Data, 4, sum_magic, SUMMAGIC)
	util.Writen(s.Data, 4, sum_size, len(ents))
	for i, e := range ents {
		o := sum_ents + i*sumentsz
		util.Writen(s.Data, 4, o, int(e.Kind))
		util.Writen(s.Data, 4, o+4, int(e.Inum))
		util.Writen(s.Data, 4, o+8, e.Blockno)
	}
}
