package models

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345678900", "12345678900"},
		{"123.456.789-00", "12345678900"},
		{"  123 456 789 00 ", "12345678900"},
		{"2023IFF-0042", "2023iff0042"},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
