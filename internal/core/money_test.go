package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"0", 0, true},
		{"1500", 1500, true},
		{" 1 500 ", 1500, true},
		{"1 234 567", 1234567, true},
		{"1_000", 1000, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1.5", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseLeadsCount(t *testing.T) {
	if v, err := ParseLeadsCount("12"); err != nil || v != 12 {
		t.Fatalf("expected 12, got %d (err=%v)", v, err)
	}
	if _, err := ParseLeadsCount("-3"); err != ErrInvalidLeads {
		t.Fatalf("expected ErrInvalidLeads, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1 000",
		1234567:  "1 234 567",
		-25000:   "-25 000",
		10000000: "10 000 000",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", in, got, want)
		}
	}
}
