package tokenize

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMap() *TokenMap {
	m := NewTokenMap("")
	m.Add(Placeholder(DefaultPrefix, "comm", "email", "0"), "john@example.com")
	m.Add(Placeholder(DefaultPrefix, "us", "national-id", "1"), "123-45-6789")
	return m
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "[TOKEN:comm:email:0]", Placeholder("TOKEN", "comm", "email", "0"))
	assert.Equal(t,
		[]string{"[TOKEN:comm:email:0]", "[TOKEN:us:national-id:1]"},
		FindPlaceholders("a [TOKEN:comm:email:0] b [TOKEN:us:national-id:1] [OTHER:x:y:z]", ""))
}

func TestTokenMap(t *testing.T) {
	m := sampleMap()
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, DefaultPrefix, m.Prefix)
	assert.Equal(t, 2, m.Len())

	v, ok := m.Get("[TOKEN:comm:email:0]")
	require.True(t, ok)
	assert.Equal(t, "john@example.com", v)

	m.Add("[TOKEN:comm:email:0]", "other@example.com")
	v, _ = m.Get("[TOKEN:comm:email:0]")
	assert.Equal(t, "john@example.com", v, "first value wins")
	assert.Equal(t, []string{"[TOKEN:comm:email:0]", "[TOKEN:us:national-id:1]"}, m.Placeholders())
}

func TestDigestIgnoresInsertionOrder(t *testing.T) {
	a := NewTokenMap("")
	a.Add("[TOKEN:a:email:0]", "x")
	a.Add("[TOKEN:a:email:1]", "y")

	b := NewTokenMap("")
	b.Add("[TOKEN:a:email:1]", "y")
	b.Add("[TOKEN:a:email:0]", "x")

	assert.Equal(t, a.Digest(), b.Digest())

	b.Add("[TOKEN:a:email:2]", "z")
	assert.NotEqual(t, a.Digest(), b.Digest())
}

func TestDetokenize(t *testing.T) {
	m := sampleMap()

	tests := []struct {
		name    string
		input   string
		opts    []DetokenizeOption
		want    string
		wantErr error
	}{
		{
			name:  "all resolved",
			input: "Email [TOKEN:comm:email:0], SSN [TOKEN:us:national-id:1]",
			want:  "Email john@example.com, SSN 123-45-6789",
		},
		{
			name:  "no placeholders",
			input: "nothing to see",
			want:  "nothing to see",
		},
		{
			name:  "repeated placeholder",
			input: "[TOKEN:comm:email:0] and [TOKEN:comm:email:0]",
			want:  "john@example.com and john@example.com",
		},
		{
			name:    "missing key fails closed",
			input:   "Email [TOKEN:comm:email:0], card [TOKEN:comm:payment-card:7]",
			wantErr: ErrDetokenizeKeyMissing,
		},
		{
			name:  "missing key tolerated",
			input: "Email [TOKEN:comm:email:0], card [TOKEN:comm:payment-card:7]",
			opts:  []DetokenizeOption{TolerateMissing()},
			want:  "Email john@example.com, card [TOKEN:comm:payment-card:7]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detokenize(tt.input, m, tt.opts...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var mk *MissingKeyError
				require.ErrorAs(t, err, &mk)
				assert.Equal(t, []string{"[TOKEN:comm:payment-card:7]"}, mk.Placeholders)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetokenizeDoesNotRescanRestoredValues(t *testing.T) {
	m := NewTokenMap("")
	m.Add("[TOKEN:a:other:0]", "[TOKEN:a:other:1]")

	got, err := Detokenize("x [TOKEN:a:other:0] y", m)
	require.NoError(t, err)
	assert.Equal(t, "x [TOKEN:a:other:1] y", got)
}

func TestDetokenizeCustomPrefix(t *testing.T) {
	m := NewTokenMap("PII")
	m.Add("[PII:eu:iban:0]", "GB82WEST12345698765432")

	got, err := Detokenize("pay [PII:eu:iban:0] now [TOKEN:eu:iban:0]", m)
	require.NoError(t, err)
	assert.Equal(t, "pay GB82WEST12345698765432 now [TOKEN:eu:iban:0]", got)
}

func TestDetokenizeNilMap(t *testing.T) {
	_, err := Detokenize("x", nil)
	assert.ErrorIs(t, err, ErrNilTokenMap)
}

func TestSigner(t *testing.T) {
	_, err := NewHMACSigner(nil)
	require.Error(t, err)

	signer, err := NewHMACSigner([]byte("test-key"))
	require.NoError(t, err)

	m := sampleMap()
	sig, err := signer.Sign(m)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(m, sig))

	m.Add("[TOKEN:comm:email:9]", "extra@example.com")
	assert.ErrorIs(t, signer.Verify(m, sig), ErrSignatureMismatch)

	other, err := NewHMACSigner([]byte("other-key"))
	require.NoError(t, err)
	otherSig, err := other.Sign(m)
	require.NoError(t, err)
	assert.ErrorIs(t, signer.Verify(m, otherSig), ErrSignatureMismatch)

	assert.Error(t, signer.Verify(m, "not-hex"))
}

func TestEncodeDecode(t *testing.T) {
	signer, err := NewHMACSigner([]byte("test-key"))
	require.NoError(t, err)

	m := sampleMap()
	encoded, err := Encode(m, signer)
	require.NoError(t, err)

	decoded, err := Decode(encoded, signer)
	require.NoError(t, err)
	assert.Equal(t, m.ID, decoded.ID)
	assert.Equal(t, m.Prefix, decoded.Prefix)
	assert.Equal(t, m.Placeholders(), decoded.Placeholders())
	assert.Equal(t, m.Digest(), decoded.Digest())

	text := "Email [TOKEN:comm:email:0]"
	got, err := Detokenize(text, decoded)
	require.NoError(t, err)
	assert.Equal(t, "Email john@example.com", got)

	unsigned, err := Encode(m, nil)
	require.NoError(t, err)
	_, err = Decode(unsigned, signer)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = Decode(unsigned, nil)
	assert.NoError(t, err)

	_, err = Decode("", nil)
	assert.Error(t, err)
	_, err = Decode("!!!", nil)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	m := sampleMap()
	require.NoError(t, store.Put(ctx, m, time.Minute))

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Same(t, m, got)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrTokenMapNotFound)

	require.NoError(t, store.Put(ctx, m, 0))
	now = now.Add(24 * time.Hour)
	_, err = store.Get(ctx, m.ID)
	require.NoError(t, err, "zero ttl never expires")

	require.NoError(t, store.Delete(ctx, m.ID))
	_, err = store.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrTokenMapNotFound)

	assert.ErrorIs(t, store.Put(ctx, nil, 0), ErrNilTokenMap)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DATADETECTOR_REDIS_ADDR")
	if addr == "" {
		t.Skip("DATADETECTOR_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	signer, err := NewHMACSigner([]byte("test-key"))
	require.NoError(t, err)
	store := NewRedisStore(client, "datadetector-test:", signer)

	m := sampleMap()
	require.NoError(t, store.Put(ctx, m, time.Minute))

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Digest(), got.Digest())

	require.NoError(t, store.Delete(ctx, m.ID))
	_, err = store.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrTokenMapNotFound)
}
