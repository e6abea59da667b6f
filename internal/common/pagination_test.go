package common

import "testing"

func TestPaginate(t *testing.T) {
	cases := []struct {
		page, size   string
		wantP, wantS int
		wantOff      int
	}{
		{"", "", 1, 25, 0},
		{"3", "10", 3, 10, 20},
		{"0", "500", 1, 100, 0},
		{"-2", "0", 1, 25, 0},
		{"2", "-5", 2, 1, 1},
		{"abc", "x", 1, 25, 0},
		{"9223372036854775807", "100", MaxPage, 100, (MaxPage - 1) * 100},
	}
	for _, tc := range cases {
		got := Paginate(tc.page, tc.size)
		if got.Page != tc.wantP || got.PageSize != tc.wantS || got.Offset() != tc.wantOff {
			t.Fatalf("Paginate(%q,%q) = %+v offset=%d", tc.page, tc.size, got, got.Offset())
		}
	}
}
