package defs

type Fdopt_t int

// system call numbers, passed in a7.
const (
	SYS_FORK   = 1
	SYS_EXIT   = 2
	SYS_WAIT   = 3
	SYS_PIPE   = 4
	SYS_READ   = 5
	SYS_KILL   = 6
	SYS_EXEC   = 7
	SYS_FSTAT  = 8
	SYS_CHDIR  = 9
	SYS_DUP    = 10
	SYS_GETPID = 11
	SYS_SBRK   = 12
	SYS_SLEEP  = 13
	SYS_UPTIME = 14
	SYS_OPEN   = 15
	SYS_WRITE  = 16
	SYS_MKNOD  = 17
	SYS_UNLINK = 18
	SYS_LINK   = 19
	SYS_MKDIR  = 20
	SYS_CLOSE  = 21
	SYS_NSYS   = 22
)

const (
	O_RDONLY Fdopt_t = 0x000
	O_WRONLY Fdopt_t = 0x001
	O_RDWR   Fdopt_t = 0x002
	O_CREATE Fdopt_t = 0x200
	O_TRUNC  Fdopt_t = 0x400
)

var Sysnames = [SYS_NSYS]string{
	SYS_FORK:   "fork",
	SYS_EXIT:   "exit",
	SYS_WAIT:   "wait",
	SYS_PIPE:   "pipe",
	SYS_READ:   "read",
	SYS_KILL:   "kill",
	SYS_EXEC:   "exec",
	SYS_FSTAT:  "fstat",
	SYS_CHDIR:  "chdir",
	SYS_DUP:    "dup",
	SYS_GETPID: "getpid",
	SYS_SBRK:   "sbrk",
	SYS_SLEEP:  "sleep",
	SYS_UPTIME: "uptime",
	SYS_OPEN:   "open",
	SYS_WRITE:  "write",
	SYS_MKNOD:  "mknod",
	SYS_UNLINK: "unlink",
	SYS_LINK:   "link",
	SYS_MKDIR:  "mkdir",
	SYS_CLOSE:  "close",
}
