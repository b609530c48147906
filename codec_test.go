package membership_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktcserver/membership"
)

func codecFor(t *testing.T, format membership.PasswordFormat) membership.PasswordCodec {
	t.Helper()
	cfg := testConfig("codec-test")
	cfg.PasswordFormat = format
	codec, err := membership.NewPasswordCodec(cfg)
	require.NoError(t, err)
	return codec
}

func TestClearCodec(t *testing.T) {
	codec := codecFor(t, membership.PasswordClear)

	stored, err := codec.Encode("Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "Passw0rd!", stored)

	plain, err := codec.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, "Passw0rd!", plain)

	ok, err := codec.Verify("Passw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = codec.Verify("nope", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncryptedCodecRoundTrip(t *testing.T) {
	codec := codecFor(t, membership.PasswordEncrypted)

	stored, err := codec.Encode("Passw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd!", stored)

	plain, err := codec.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, "Passw0rd!", plain)

	ok, err := codec.Verify("Passw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = codec.Verify("nope", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncryptedCodecRandomizesCiphertext(t *testing.T) {
	codec := codecFor(t, membership.PasswordEncrypted)

	a, err := codec.Encode("same input")
	require.NoError(t, err)
	b, err := codec.Encode("same input")
	require.NoError(t, err)

	// Fresh nonce per encode; both still verify.
	assert.NotEqual(t, a, b)

	ok, err := codec.Verify("same input", a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = codec.Verify("same input", b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashedCodec(t *testing.T) {
	codec := codecFor(t, membership.PasswordHashed)

	stored, err := codec.Encode("Passw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd!", stored)

	// Deterministic: equal inputs produce equal stored values.
	again, err := codec.Encode("Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, stored, again)

	ok, err := codec.Verify("Passw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = codec.Verify("nope", stored)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = codec.Decode(stored)
	assert.ErrorIs(t, err, membership.ErrNotReversible)
}

func TestCodecEmptyStringPassesThrough(t *testing.T) {
	for _, format := range []membership.PasswordFormat{
		membership.PasswordClear,
		membership.PasswordEncrypted,
		membership.PasswordHashed,
	} {
		t.Run(format.String(), func(t *testing.T) {
			codec := codecFor(t, format)

			stored, err := codec.Encode("")
			require.NoError(t, err)
			assert.Equal(t, "", stored)

			// Absent secrets pass through in both directions, even for
			// the hashed codec whose Decode otherwise fails.
			plain, err := codec.Decode("")
			require.NoError(t, err)
			assert.Equal(t, "", plain)

			ok, err := codec.Verify("", "")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCodecRequiresDurableKey(t *testing.T) {
	cfg := membership.NewConfig("codec-test")
	cfg.PasswordFormat = membership.PasswordHashed
	cfg.ValidationKey = ""

	_, err := membership.NewPasswordCodec(cfg)
	assert.ErrorIs(t, err, membership.ErrKeyRequired)

	cfg.PasswordFormat = membership.PasswordEncrypted
	_, err = membership.NewPasswordCodec(cfg)
	assert.ErrorIs(t, err, membership.ErrKeyRequired)

	cfg.PasswordFormat = membership.PasswordClear
	_, err = membership.NewPasswordCodec(cfg)
	assert.NoError(t, err)
}
