package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks values against `validate` struct tags.
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules ...string) error
}

type playground struct {
	v *validator.Validate
}

// New returns a Validator that names fields by their json tag.
func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return &playground{v: v}
}

// Validate returns the first failed rule of obj as "field: failed "rule" check".
func (p *playground) Validate(obj interface{}) error {
	return describe(p.v.Struct(obj))
}

func (p *playground) ValidateField(field string, value interface{}, rules ...string) error {
	if err := p.v.Var(value, strings.Join(rules, ",")); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed %q check", field, verrs[0].Tag())
		}
		return err
	}
	return nil
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%s: failed %q check", fe.Field(), fe.Tag())
	}
	return err
}
