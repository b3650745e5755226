package defs

type Inum_t uint32

type Pid_t int

// on-disk inode types
const (
	T_DIR    int16 = 1
	T_FILE   int16 = 2
	T_DEVICE int16 = 3
)

// user-visible exit status of a process that was killed or faulted
const KILLED_STATUS = -1
