package database

import "testing"

func TestNormalizeCadetName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"JOHN DOE", "john doe"},
		{"  Aarav   Sharma ", "aarav sharma"},
		{"Žluťoučký Kůň", "zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeCadetName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeCadetName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
