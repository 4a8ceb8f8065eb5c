package encode

// Varint encoding shared by the O5M encoder: unsigned integers are
// little-endian base-128 with the continuation bit in bit 7; signed
// integers are zig-zag mapped first.

// AppendUint appends n as an unsigned base-128 varint to buf.
func AppendUint(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}

// DecodeUint reads an unsigned varint from buf, returning the value and
// the number of bytes consumed.
func DecodeUint(buf []byte) (uint64, int) {
	var n uint64
	var shift uint
	for i, b := range buf {
		n |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, i + 1
		}
		shift += 7
	}
	return n, len(buf)
}

// zigzag maps n >= 0 to 2n and n < 0 to (-n-1)*2+1.
func zigzag(n int64) uint64 {
	if n >= 0 {
		return uint64(n) * 2
	}
	return uint64(-n-1)*2 + 1
}

func unzigzag(u uint64) int64 {
	if u%2 == 0 {
		return int64(u / 2)
	}
	return -int64(u/2) - 1
}

// AppendSint appends the zig-zag varint encoding of n to buf.
func AppendSint(buf []byte, n int64) []byte {
	return AppendUint(buf, zigzag(n))
}

// DecodeSint reads a zig-zag varint from buf, returning the value and the
// number of bytes consumed.
func DecodeSint(buf []byte) (int64, int) {
	u, n := DecodeUint(buf)
	return unzigzag(u), n
}
