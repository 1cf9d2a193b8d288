package api

import "unicode/utf8"

// PasswordStrength scores p from 0 to 5: one point each for length of at
// least 8, a lowercase letter, an uppercase letter, a digit and any other
// character.
func PasswordStrength(p string) int {
	if p == "" {
		return 0
	}

	var lower, upper, digit, other bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}

	score := 0
	for _, ok := range []bool{utf8.RuneCountInString(p) >= 8, lower, upper, digit, other} {
		if ok {
			score++
		}
	}
	return score
}

// StrengthLabel names a PasswordStrength score.
func StrengthLabel(score int) string {
	switch {
	case score <= 1:
		return "Weak"
	case score <= 3:
		return "Medium"
	default:
		return "Strong"
	}
}
