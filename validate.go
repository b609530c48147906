package membership

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// validateName checks a user or role name argument: non-empty, bounded,
// and free of commas (names travel through comma-joined host APIs).
func validateName(kind, name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 256),
		validation.By(noCommas),
	)
	if err != nil {
		return validationError(fmt.Sprintf("invalid %s name: %v", kind, err))
	}
	return nil
}

func noCommas(value any) error {
	if s, _ := value.(string); strings.Contains(s, ",") {
		return fmt.Errorf("cannot contain commas")
	}
	return nil
}

func validEmail(email string) bool {
	return validation.Validate(email, validation.Required, is.Email) == nil
}
