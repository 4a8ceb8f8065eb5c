package classify

import "testing"

func TestClassify(t *testing.T) {
	c := New(200, 100)

	tests := []struct {
		elevation int
		want      Extension
	}{
		{0, Major},
		{200, Major},
		{-200, Major},
		{100, Medium},
		{300, Medium},
		{30, Minor},
		{150, Minor},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.elevation); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.elevation, got, tt.want)
		}
	}
}

// TestClassifyInvariant brute-forces that major always wins over medium.
func TestClassifyInvariant(t *testing.T) {
	c := New(200, 100)
	for e := -1000; e <= 1000; e++ {
		got := c.Classify(e)
		wantMajor := e%200 == 0
		wantMedium := e%100 == 0 && e%200 != 0
		switch {
		case wantMajor && got != Major:
			t.Fatalf("e=%d: want Major, got %s", e, got)
		case wantMedium && got != Medium:
			t.Fatalf("e=%d: want Medium, got %s", e, got)
		case !wantMajor && !wantMedium && got != Minor:
			t.Fatalf("e=%d: want Minor, got %s", e, got)
		}
	}
}
