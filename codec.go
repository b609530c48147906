package membership

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

// PasswordCodec encodes and verifies stored secrets (passwords and secret
// answers). One codec is built per provider from Config.PasswordFormat.
//
// Every implementation treats the empty string as a sentinel and passes it
// through unchanged in both directions, so absent secrets are never
// hashed or encrypted.
type PasswordCodec interface {
	Encode(plain string) (string, error)
	// Decode recovers the cleartext from a stored secret. The hashed
	// codec fails with ErrNotReversible.
	Decode(stored string) (string, error)
	Verify(plain, stored string) (bool, error)
}

// NewPasswordCodec builds the codec for the configured format. Encrypted
// and hashed formats require a durable validation key; with an
// auto-generated key only the clear format is allowed.
func NewPasswordCodec(cfg *Config) (PasswordCodec, error) {
	switch cfg.PasswordFormat {
	case PasswordClear:
		return clearCodec{}, nil
	case PasswordEncrypted:
		if cfg.ValidationKey == "" {
			return nil, ErrKeyRequired
		}
		block, err := aes.NewCipher(deriveKey(cfg.ValidationKey))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password cipher")
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password cipher")
		}
		return encryptedCodec{aead: aead}, nil
	case PasswordHashed:
		if cfg.ValidationKey == "" {
			return nil, ErrKeyRequired
		}
		return hashedCodec{key: deriveKey(cfg.ValidationKey)}, nil
	}
	return nil, validationError("password format not supported")
}

// deriveKey stretches the configured key string into 32 bytes of key
// material.
func deriveKey(validationKey string) []byte {
	return pbkdf2.Key([]byte(validationKey), []byte("membership.codec.v1"), 4096, 32, sha256.New)
}

type clearCodec struct{}

func (clearCodec) Encode(plain string) (string, error) { return plain, nil }

func (clearCodec) Decode(stored string) (string, error) { return stored, nil }

func (clearCodec) Verify(plain, stored string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1, nil
}

type encryptedCodec struct {
	aead cipher.AEAD
}

func (c encryptedCodec) Encode(plain string) (string, error) {
	if plain == "" {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt password")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c encryptedCodec) Decode(stored string) (string, error) {
	if stored == "" {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "stored password is not valid ciphertext")
	}
	if len(raw) < c.aead.NonceSize() {
		return "", validationError("stored password is not valid ciphertext")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "stored password failed authentication")
	}
	return string(plain), nil
}

func (c encryptedCodec) Verify(plain, stored string) (bool, error) {
	if stored == "" {
		return plain == "", nil
	}
	decoded, err := c.Decode(stored)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(decoded)) == 1, nil
}

type hashedCodec struct {
	key []byte
}

func (c hashedCodec) Encode(plain string) (string, error) {
	if plain == "" {
		return plain, nil
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(plain))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c hashedCodec) Decode(stored string) (string, error) {
	if stored == "" {
		return stored, nil
	}
	return "", ErrNotReversible
}

func (c hashedCodec) Verify(plain, stored string) (bool, error) {
	encoded, err := c.Encode(plain)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(encoded), []byte(stored)), nil
}
