package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPage(t *testing.T) {
	cases := []struct {
		page, size, def, max        int
		wantPage, wantSize, wantOff int
	}{
		{0, 0, 20, 100, 1, 20, 0},
		{-3, 5, 20, 100, 1, 5, 0},
		{3, 0, 20, 100, 3, 20, 40},
		{2, 500, 20, 100, 2, 100, 100},
		{2, 500, 20, 0, 2, 500, 500},
	}
	for _, tc := range cases {
		p, s, off := Page(tc.page, tc.size, tc.def, tc.max)
		if p != tc.wantPage || s != tc.wantSize || off != tc.wantOff {
			t.Fatalf("Page(%d, %d, %d, %d) = (%d, %d, %d); want (%d, %d, %d)",
				tc.page, tc.size, tc.def, tc.max, p, s, off, tc.wantPage, tc.wantSize, tc.wantOff)
		}
	}
}
