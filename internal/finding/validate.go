package finding

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the finding enum tags registered.
// Other packages reuse it for their own request structs.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			return SeverityRank(Severity(fl.Field().String())) > 0
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			switch Category(fl.Field().String()) {
			case CategorySecurity, CategoryBug, CategoryLogic, CategoryStyle, CategoryPerformance, CategoryMaintainability:
				return true
			}
			return false
		})
		_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
			switch Source(fl.Field().String()) {
			case SourceSemantic, SourceStatic, SourceManual:
				return true
			}
			return false
		})
		validate = v
	})
	return validate
}

// Validate checks the structural invariants of a finding.
func Validate(f Finding) error {
	err := Validator().Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid finding %s: %s", f.ID, strings.Join(msgs, ", "))
}
