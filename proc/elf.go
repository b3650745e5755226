package proc

import "rv6/util"

const (
	// "\x7fELF" in little endian
	ELF_MAGIC   = 0x464c457f
	ELFCLASS64  = 2
	ELFDATA2LSB = 1
	EM_RISCV    = 243
	ET_EXEC     = 2

	ELF_PROG_LOAD = 1

	ELF_PROG_FLAG_EXEC  = 1
	ELF_PROG_FLAG_WRITE = 2
	ELF_PROG_FLAG_READ  = 4

	ELFHDRSZ  = 64
	PROGHDRSZ = 56
)

// file header
type Elfhdr_t struct {
	Magic     uint32
	Class     uint8
	Data      uint8
	Type      uint16
	Machine   uint16
	Entry     uint64
	Phoff     uint64
	Phnum     uint16
	Phentsize uint16
}

func (e *Elfhdr_t) Decode(b []uint8) {
	e.Magic = uint32(util.Readn(b, 4, 0))
	e.Class = b[4]
	e.Data = b[5]
	e.Type = uint16(util.Readn(b, 2, 16))
	e.Machine = uint16(util.Readn(b, 2, 18))
	e.Entry = uint64(util.Readn(b, 8, 24))
	e.Phoff = uint64(util.Readn(b, 8, 32))
	e.Phentsize = uint16(util.Readn(b, 2, 54))
	e.Phnum = uint16(util.Readn(b, 2, 56))
}

func (e *Elfhdr_t) Encode(b []uint8) {
	util.Writen(b, 4, 0, int(e.Magic))
	b[4] = e.Class
	b[5] = e.Data
	// EI_VERSION
	b[6] = 1
	util.Writen(b, 2, 16, int(e.Type))
	util.Writen(b, 2, 18, int(e.Machine))
	util.Writen(b, 4, 20, 1)
	util.Writen(b, 8, 24, int(e.Entry))
	util.Writen(b, 8, 32, int(e.Phoff))
	util.Writen(b, 2, 52, ELFHDRSZ)
	util.Writen(b, 2, 54, int(e.Phentsize))
	util.Writen(b, 2, 56, int(e.Phnum))
}

// a 64-bit image for this machine?
func (e *Elfhdr_t) Valid() bool {
	return e.Magic == ELF_MAGIC && e.Class == ELFCLASS64 &&
		e.Data == ELFDATA2LSB && e.Machine == EM_RISCV
}

// program section header
type Proghdr_t struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (ph *Proghdr_t) Decode(b []uint8) {
	ph.Type = uint32(util.Readn(b, 4, 0))
	ph.Flags = uint32(util.Readn(b, 4, 4))
	ph.Off = uint64(util.Readn(b, 8, 8))
	ph.Vaddr = uint64(util.Readn(b, 8, 16))
	ph.Filesz = uint64(util.Readn(b, 8, 32))
	ph.Memsz = uint64(util.Readn(b, 8, 40))
	ph.Align = uint64(util.Readn(b, 8, 48))
}

func (ph *Proghdr_t) Encode(b []uint8) {
	util.Writen(b, 4, 0, int(ph.Type))
	util.Writen(b, 4, 4, int(ph.Flags))
	util.Writen(b, 8, 8, int(ph.Off))
	util.Writen(b, 8, 16, int(ph.Vaddr))
	// paddr
	util.Writen(b, 8, 24, int(ph.Vaddr))
	util.Writen(b, 8, 32, int(ph.Filesz))
	util.Writen(b, 8, 40, int(ph.Memsz))
	util.Writen(b, 8, 48, int(ph.Align))
}
