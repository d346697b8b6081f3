package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID   string `json:"id" validate:"required,uuid"`
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Note string
}

func TestValidate_NamesFieldsByJSONTag(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(row{ID: "8f14e45f-ceea-467f-a8f0-5e1f5a1c2b3d", Date: "2024-05-01"}))

	err := v.Validate(row{ID: "nope", Date: "2024-05-01"})
	assert.EqualError(t, err, `id: failed "uuid" check`)

	err = v.Validate(&row{ID: "8f14e45f-ceea-467f-a8f0-5e1f5a1c2b3d", Date: "01/05/2024"})
	assert.EqualError(t, err, `date: failed "datetime" check`)
}

func TestValidateField(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateField("rating", 3, "min=1", "max=5"))
	assert.EqualError(t, v.ValidateField("rating", 7, "min=1", "max=5"), `rating: failed "max" check`)
}
