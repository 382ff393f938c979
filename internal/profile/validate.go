package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every error Validate returns for a malformed bundle.
var ErrInvalid = errors.New("invalid profile bundle")

var (
	validate *validator.Validate
	once     sync.Once
)

// Validator returns the shared validator instance, also used by the HTTP layer
// for request bodies.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks a bundle received from outside the process.
func Validate(b Bundle) error {
	err := Validator().Struct(b)
	if err == nil {
		return nil
	}
	return Describe(ErrInvalid, err)
}

// Describe flattens validator errors into one readable message wrapped
// around base.
func Describe(base, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", base, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", base, strings.Join(msgs, "; "))
}

// Sort applies the canonical display orderings: experience by start date
// descending, projects by display order, skills by name, education by end
// date descending. Dates are ISO strings, so lexical order is date order.
func (b *Bundle) Sort() {
	sort.SliceStable(b.Experience, func(i, j int) bool {
		return b.Experience[i].StartDate > b.Experience[j].StartDate
	})
	sort.SliceStable(b.Projects, func(i, j int) bool {
		return b.Projects[i].Order < b.Projects[j].Order
	})
	sort.SliceStable(b.Skills, func(i, j int) bool {
		return b.Skills[i].Name < b.Skills[j].Name
	})
	sort.SliceStable(b.Education, func(i, j int) bool {
		return b.Education[i].EndDate > b.Education[j].EndDate
	})
}
