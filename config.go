package membership

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// PasswordFormat selects the credential storage strategy. It is fixed for
// the lifetime of a provider.
type PasswordFormat int

const (
	// PasswordClear stores passwords as given.
	PasswordClear PasswordFormat = iota
	// PasswordEncrypted stores passwords reversibly encrypted with the
	// configured validation key.
	PasswordEncrypted
	// PasswordHashed stores a one-way keyed hash; stored passwords can
	// never be recovered.
	PasswordHashed
)

func (f PasswordFormat) String() string {
	switch f {
	case PasswordClear:
		return "clear"
	case PasswordEncrypted:
		return "encrypted"
	case PasswordHashed:
		return "hashed"
	}
	return "unknown"
}

// Config is the provider configuration, resolved once before any provider
// is built and treated as read-only afterwards. The zero value is not
// usable; start from NewConfig.
type Config struct {
	// ApplicationName partitions accounts and roles; uniqueness of names
	// holds only within one application.
	ApplicationName string

	PasswordFormat PasswordFormat

	// ValidationKey feeds the encrypted and hashed codecs. An empty key
	// means a non-durable auto-generated key, which only supports the
	// clear format.
	ValidationKey string

	MaxInvalidAttempts int
	AttemptWindow      time.Duration

	MinPasswordLength       int
	MinNonAlphanumeric      int
	PasswordStrengthPattern string

	RequiresQuestionAndAnswer bool
	RequiresUniqueEmail       bool
	EnablePasswordReset       bool
	EnablePasswordRetrieval   bool

	// LogFailures routes infrastructure failures to the Logger sink and
	// masks them behind ErrProviderFailure.
	LogFailures bool

	// OnlineWindow bounds how stale an account's last activity may be to
	// still count as online.
	OnlineWindow time.Duration

	strengthRe *regexp.Regexp
}

// NewConfig returns a configuration with the stock defaults for the given
// application scope.
func NewConfig(applicationName string) *Config {
	return &Config{
		ApplicationName:         applicationName,
		PasswordFormat:          PasswordHashed,
		MaxInvalidAttempts:      5,
		AttemptWindow:           10 * time.Minute,
		MinPasswordLength:       7,
		MinNonAlphanumeric:      1,
		RequiresUniqueEmail:     true,
		EnablePasswordReset:     true,
		EnablePasswordRetrieval: true,
		OnlineWindow:            15 * time.Minute,
	}
}

// Validate checks the configuration and compiles the strength pattern.
// Providers call it at construction; bad combinations fail fast.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ApplicationName, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.MaxInvalidAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.AttemptWindow, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.MinPasswordLength, validation.Required, validation.Min(1), validation.Max(128)),
		validation.Field(&c.MinNonAlphanumeric, validation.Min(0)),
		validation.Field(&c.OnlineWindow, validation.Required, validation.Min(time.Minute)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid membership configuration")
	}

	if c.PasswordFormat != PasswordClear && c.PasswordFormat != PasswordEncrypted && c.PasswordFormat != PasswordHashed {
		return validationError("password format not supported")
	}

	if c.PasswordFormat != PasswordClear && c.ValidationKey == "" {
		return ErrKeyRequired
	}

	if c.PasswordStrengthPattern != "" {
		re, err := regexp.Compile(c.PasswordStrengthPattern)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password strength pattern")
		}
		c.strengthRe = re
	}

	return nil
}
