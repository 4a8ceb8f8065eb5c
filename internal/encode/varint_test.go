package encode

import "testing"

func TestUintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 16384, 1 << 40, ^uint64(0)}
	for _, n := range cases {
		buf := AppendUint(nil, n)
		got, consumed := DecodeUint(buf)
		if got != n {
			t.Errorf("DecodeUint(AppendUint(%d)) = %d", n, got)
		}
		if consumed != len(buf) {
			t.Errorf("consumed %d, want %d", consumed, len(buf))
		}
	}
}

func TestSintRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 63, -64, 1000, -1000, 1 << 40, -(1 << 40)}
	for _, n := range cases {
		buf := AppendSint(nil, n)
		got, consumed := DecodeSint(buf)
		if got != n {
			t.Errorf("DecodeSint(AppendSint(%d)) = %d", n, got)
		}
		if consumed != len(buf) {
			t.Errorf("consumed %d, want %d", consumed, len(buf))
		}
	}
}

func TestZigZagMapping(t *testing.T) {
	if got := zigzag(0); got != 0 {
		t.Errorf("zigzag(0) = %d, want 0", got)
	}
	if got := zigzag(-1); got != 1 {
		t.Errorf("zigzag(-1) = %d, want 1", got)
	}
	if got := zigzag(1); got != 2 {
		t.Errorf("zigzag(1) = %d, want 2", got)
	}
}
