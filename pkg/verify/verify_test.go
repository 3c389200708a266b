package verify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLuhn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid visa", "4532015112830366", true},
		{"last digit flipped", "4532015112830367", false},
		{"classic test number", "79927398713", true},
		{"separators ignored", "4111 1111 1111 1111", true},
		{"dashes ignored", "4111-1111-1111-1111", true},
		{"no digits", "abcd", false},
		{"empty", "", false},
		{"single zero", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Luhn(tt.input))
		})
	}
}

func TestIBANMod97(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"uk", "GB82WEST12345698765432", true},
		{"uk last digit flipped", "GB82WEST12345698765433", false},
		{"germany", "DE89370400440532013000", true},
		{"france with letter in bban", "FR1420041010050500013M02606", true},
		{"netherlands lowercase with spaces", "nl91 abna 0417 1643 00", true},
		{"invalid character", "GB82-WEST-1234-5698-7654-32", false},
		{"too short", "GB82", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IBANMod97(tt.input))
		})
	}
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(""))
	assert.Equal(t, 0.0, Entropy(strings.Repeat("a", 24)))
	assert.InDelta(t, 1.0, Entropy("abab"), 1e-9)
	assert.InDelta(t, 4.585, Entropy("aB3dE5gH7jK9mN1pQ2rS4tU6"), 1e-3)
}

func TestHighEntropy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"repeated character", strings.Repeat("x", 24), false},
		{"all distinct", "aB3dE5gH7jK9mN1pQ2rS4tU6", true},
		{"two characters doubled", "aaBB3dE5gH7jK9mN1pQ2rS4t", true},
		{"too short", "aB3dE5gH7j", false},
		{"contains space", "aB3dE5gH7jK9 mN1pQ2rS4tU6", false},
		{"outside alphabet", "aB3dE5gH7jK9mN1pQ2rS4tU6!", false},
		{"low entropy hex", "abababababababababababab", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighEntropy(tt.input))
		})
	}
}

func TestEntropyVerifierThreshold(t *testing.T) {
	v := &EntropyVerifier{Threshold: 4.5, MinLength: 0}
	assert.True(t, v.Verify("aB3dE5gH7jK9mN1pQ2rS4tU6"))
	assert.False(t, v.Verify("aaBB3dE5gH7jK9mN1pQ2rS4t"))

	r := Default(WithEntropyThreshold(4.5))
	hv, ok := r.Lookup(NameHighEntropy)
	require.True(t, ok)
	assert.False(t, hv.Verify("aaBB3dE5gH7jK9mN1pQ2rS4t"))
}

func TestDMSCoordinate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"latitude", "37°46′29.7″N", true},
		{"longitude", "122°25′9.8″W", true},
		{"latitude out of range", "91°00′00″S", false},
		{"longitude out of range", "181°00′00″E", false},
		{"minutes out of range", "37°60′00″N", false},
		{"seconds out of range", "37°46′60″N", false},
		{"not a coordinate", "37 degrees north", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DMSCoordinate(tt.input))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{NameDMSCoordinate, NameHighEntropy, NameIBANMod97, NameLuhn}, r.Names())

	luhn, ok := r.Lookup(NameLuhn)
	require.True(t, ok)
	assert.True(t, luhn.Verify("4532015112830366"))

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	require.NoError(t, r.RegisterFunc("even_length", func(s string) bool { return len(s)%2 == 0 }))
	v, ok := r.Lookup("even_length")
	require.True(t, ok)
	assert.True(t, v.Verify("ab"))

	assert.True(t, r.Unregister("even_length"))
	assert.False(t, r.Unregister("even_length"))
	_, ok = r.Lookup("even_length")
	assert.False(t, ok)

	assert.ErrorIs(t, r.Register("", VerifierFunc(Luhn)), ErrEmptyName)
	assert.ErrorIs(t, r.Register("nil", nil), ErrNilVerifier)
	assert.ErrorIs(t, r.RegisterFunc("nil", nil), ErrNilVerifier)
}

func TestSafeRecoversPanics(t *testing.T) {
	v := Safe(VerifierFunc(func(s string) bool {
		panic("boom")
	}))
	assert.False(t, v.Verify("anything"))

	// wrapping twice keeps one layer
	_, ok := Safe(v).(safeVerifier).inner.(safeVerifier)
	assert.False(t, ok)
	assert.Nil(t, Safe(nil))
}

func TestBuiltinsAreTotal(t *testing.T) {
	r := Default()
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "candidate")
		for _, name := range r.Names() {
			v, _ := r.Lookup(name)
			_ = v.Verify(s)
		}
	})
}

func TestLuhnDetectsSingleDigitErrors(t *testing.T) {
	const valid = "4532015112830366"
	rapid.Check(t, func(t *rapid.T) {
		pos := rapid.IntRange(0, len(valid)-1).Draw(t, "pos")
		delta := rapid.IntRange(1, 9).Draw(t, "delta")

		b := []byte(valid)
		b[pos] = byte('0' + (int(b[pos]-'0')+delta)%10)
		if Luhn(string(b)) {
			t.Fatalf("corrupted %q still verifies", string(b))
		}
	})
}
