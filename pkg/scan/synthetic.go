package scan

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
)

// synthesizer fabricates replacement values. Each Redact call gets its own,
// so no random state is shared between goroutines.
type synthesizer struct {
	f *gofakeit.Faker
}

func newSynthesizer() *synthesizer {
	return &synthesizer{f: gofakeit.New(0)}
}

// generate returns a fabricated value shaped like original
func (s *synthesizer) generate(c Category, original string) (string, bool) {
	switch c {
	case CategoryEmail:
		return s.f.Email(), true
	case CategoryPhone:
		return s.reshape(original), true
	case CategoryPaymentCard:
		return s.f.CreditCardNumber(&gofakeit.CreditCardOptions{
			Gaps: strings.ContainsAny(original, " -"),
		}), true
	case CategoryIP:
		if strings.Contains(original, ":") {
			return s.f.IPv6Address(), true
		}
		return s.f.IPv4Address(), true
	case CategoryIBAN:
		return s.iban(original)
	case CategoryName:
		return s.f.Name(), true
	case CategoryAddress:
		return s.f.Street(), true
	case CategoryNationalID, CategoryBankAccount, CategoryPassport, CategoryOther:
		return s.reshape(original), true
	default:
		return "", false
	}
}

// reshape swaps every digit and letter for a random one of the same kind
// and case, keeping separators
func (s *synthesizer) reshape(original string) string {
	var b strings.Builder
	b.Grow(len(original))
	for _, r := range original {
		switch {
		case r >= '0' && r <= '9':
			b.WriteByte(byte('0' + s.f.Number(0, 9)))
		case r >= 'a' && r <= 'z':
			b.WriteString(strings.ToLower(s.f.Letter()))
		case r >= 'A' && r <= 'Z':
			b.WriteString(strings.ToUpper(s.f.Letter()))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// iban keeps the country code, randomizes the account part and computes
// fresh check digits so the result still passes mod 97
func (s *synthesizer) iban(original string) (string, bool) {
	compact := strings.ToUpper(strings.ReplaceAll(original, " ", ""))
	if len(compact) < 5 || !unicode.IsLetter(rune(compact[0])) || !unicode.IsLetter(rune(compact[1])) {
		return "", false
	}

	country := compact[:2]
	bban := s.reshape(compact[4:])

	remainder, ok := mod97(bban + country + "00")
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s%02d%s", country, 98-remainder, bban), true
}

// mod97 folds an alphanumeric string with letters as 10..35
func mod97(s string) (int, bool) {
	rem := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			rem = (rem*100 + int(c-'A') + 10) % 97
		default:
			return 0, false
		}
	}
	return rem, true
}
