package defs

const (
	// maximum number of processes
	NPROC = 64
	// maximum number of CPUs
	NCPU = 8
	// open files per process
	NOFILE = 16
	// open files per system
	NFILE = 100
	// maximum number of active i-nodes
	NINODE = 50
	// maximum major device number
	NDEV = 10
	// device number of file system root disk
	ROOTDEV = 1
	// max exec arguments
	MAXARG = 32
	// block size
	BSIZE = 1024
	// max # of blocks any FS op writes
	MAXOPBLOCKS = 10
	// max data blocks in on-disk log
	LOGSIZE = MAXOPBLOCKS * 3
	// size of disk block cache
	NBUF = MAXOPBLOCKS * 3
	// maximum file path name
	MAXPATH = 128
	// maximum length of process name
	MAXPROCNAME = 16
	// LFS segment size in blocks, summary block included
	SEGSIZE = 10
	// user stack pages, guard page included
	USERSTACK = 2
)
