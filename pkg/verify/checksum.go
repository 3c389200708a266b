package verify

import "strings"

// Luhn reports whether the digits of candidate pass the mod-10 checksum.
// Non-digit characters are ignored; fewer than two digits never verify.
func Luhn(candidate string) bool {
	sum := 0
	count := 0
	double := false

	for i := len(candidate) - 1; i >= 0; i-- {
		c := candidate[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		count++
	}

	return count >= 2 && sum%10 == 0
}

// IBANMod97 reports whether candidate is an IBAN whose check digits
// satisfy ISO 7064 mod 97-10. Spaces are ignored and letters are case
// insensitive.
func IBANMod97(candidate string) bool {
	iban := strings.ToUpper(strings.ReplaceAll(candidate, " ", ""))
	if len(iban) < 5 || len(iban) > 34 {
		return false
	}

	rearranged := iban[4:] + iban[:4]

	// Fold the remainder digit by digit so arbitrarily long inputs never
	// need big integer arithmetic.
	remainder := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		switch {
		case c >= '0' && c <= '9':
			remainder = (remainder*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			remainder = (remainder*100 + v) % 97
		default:
			return false
		}
	}

	return remainder == 1
}
