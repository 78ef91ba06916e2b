package domain

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var hexColour = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Institution is the bank or card issuer an account was linked through.
type Institution struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	PrimaryColour string `json:"primaryColour,omitempty"` // "#RRGGBB"
}

func (i Institution) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Name, validation.Required.Error("is required")),
		validation.Field(&i.PrimaryColour, validation.Match(hexColour).Error("must be a #RRGGBB colour")),
	)
}
