//go:build !unix

package cog

import "fmt"

// mmapFile has no implementation off Unix; GeoTIFF input needs a
// platform with memory mapping.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, fmt.Errorf("memory mapping is not supported on this platform")
}

func munmapFile(data []byte) error {
	return nil
}
