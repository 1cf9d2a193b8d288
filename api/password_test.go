package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password  string
		wantScore int
		wantLabel string
	}{
		{"", 0, "Weak"},
		{"abc", 1, "Weak"},
		{"abcdefgh", 2, "Medium"},
		{"Abcdefgh", 3, "Medium"},
		{"Abcdefg1", 4, "Strong"},
		{"Abcdef1!", 5, "Strong"},
		{"ÄÖÜ12345", 3, "Medium"}, // non-ASCII letters count as symbols
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			score := PasswordStrength(tt.password)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantLabel, StrengthLabel(score))
		})
	}
}
