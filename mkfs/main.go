// Command mkfs writes a file system image holding the console device node
// and the user programs, then boots it on the host to check it.
package main

import "flag"
import "fmt"
import "log"
import "os"
import "sort"

import "rv6/hostfs"
import "rv6/hw"
import "rv6/kernel"
import "rv6/uprog"

func main() {
	uselfs := flag.Bool("lfs", false, "make a log-structured file system")
	size := flag.Int("size", 2000, "image size in blocks")
	ninodes := flag.Int("ninodes", 200, "number of inodes")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mkfs [flags] <output image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	image := flag.Arg(0)
	fstype := kernel.UFS
	if *uselfs {
		fstype = kernel.LFS
	}

	fmt.Printf("mkfs %s (%s, %d blocks, %d inodes)\n", image, fstype, *size,
		*ninodes)
	img, err := kernel.Mkimage(fstype, *size, *ninodes, uprog.Installed)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	if err := os.WriteFile(image, img, 0644); err != nil {
		log.Fatalf("mkfs: %v", err)
	}

	d, err := hw.OpenFiledisk(image)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	h, err := hostfs.Boot(d, hostfs.Config_t{Fstype: fstype})
	if err != nil {
		log.Fatalf("mkfs: boot %s: %v", image, err)
	}
	st, xerr := h.Stat("/")
	if xerr != 0 {
		log.Fatalf("not a valid fs: no root inode")
	}
	fmt.Printf("root inode %d\n", st.Rino())
	dir, xerr := h.Ls("/")
	if xerr != 0 {
		log.Fatalf("not a valid fs: no root dir")
	}
	var names []string
	for n := range dir {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("\t%-14s %d %d\n", n, dir[n].Type(), dir[n].Size())
	}
	h.Shutdown()
	if err := d.Close(); err != nil {
		log.Fatalf("mkfs: %v", err)
	}
}
