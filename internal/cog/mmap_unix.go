//go:build unix

package cog

import "syscall"

// mmapFile maps a whole elevation file read-only; the fd may be closed
// once the mapping exists. Read-only mapping is also what makes
// concurrent tile reads lock-free.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return syscall.Mmap(int(fd), 0, size, syscall.PROT_READ, syscall.MAP_PRIVATE)
}

// munmapFile releases a mapping created by mmapFile.
func munmapFile(data []byte) error {
	return syscall.Munmap(data)
}
