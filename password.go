package membership

import (
	"crypto/rand"
	"fmt"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordValidator is the pluggable validation hook run before any new
// password is accepted (create, change, reset). Returning an error vetoes
// the operation with that reason.
type PasswordValidator func(userName, password string, isNew bool) error

// PolicyValidator builds the default hook from the configured password
// policy: minimum length, minimum non-alphanumeric characters, and the
// optional strength pattern.
func PolicyValidator(cfg *Config) PasswordValidator {
	return func(userName, password string, isNew bool) error {
		if len(password) < cfg.MinPasswordLength {
			return ErrWeakPassword
		}
		if countNonAlphanumeric(password) < cfg.MinNonAlphanumeric {
			return ErrWeakPassword
		}
		if cfg.strengthRe != nil && !cfg.strengthRe.MatchString(password) {
			return ErrWeakPassword
		}
		return nil
	}
}

func countNonAlphanumeric(s string) int {
	n := 0
	for _, r := range s {
		if !isAlphanumeric(r) {
			n++
		}
	}
	return n
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

const (
	passwordAlnum   = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordSymbols = "!@#$%^&*()-_=+[]{}<>?"
)

// GeneratePassword returns a random password of the given length carrying
// at least nonAlphanumeric symbol characters. Reset passwords come from
// here with length max(MinPasswordLength, 8).
func GeneratePassword(length, nonAlphanumeric int) (string, error) {
	if length < 1 {
		return "", validationError("password length must be positive")
	}
	if nonAlphanumeric > length {
		nonAlphanumeric = length
	}

	out := make([]byte, 0, length)
	for i := 0; i < nonAlphanumeric; i++ {
		c, err := randomChar(passwordSymbols)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomChar(passwordAlnum)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the symbols are not clumped at the front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to draw random index below %d", n))
	}
	return int(v.Int64()), nil
}
