package content

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "content: invalid document: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidDocument }

// Validate checks the field constraints on a document: unique item IDs per
// list, well-formed dates and times, and the enumerated colors and
// positions.
func Validate(doc *Document) error {
	if doc == nil {
		return &ValidationError{Fields: []string{"document"}}
	}
	err := validatorInstance().Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.TrimPrefix(fe.Namespace(), "Document.")+" ("+fe.Tag()+")")
	}
	return &ValidationError{Fields: fields}
}
