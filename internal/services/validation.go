package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fashionfield/checkout/internal/domain"
	"github.com/fashionfield/checkout/internal/platform/textutil"
)

type contactForm struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"required,min=6,max=20"`
}

type shippingForm struct {
	AddressType string `json:"addressType" validate:"max=32"`
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	AptSuite    string `json:"aptSuite" validate:"max=100"`
	Address     string `json:"address" validate:"required,max=255"`
	City        string `json:"city" validate:"required,max=100"`
	State       string `json:"state" validate:"max=100"`
	PostalCode  string `json:"postalCode" validate:"required,max=32"`
	Country     string `json:"country" validate:"required,max=56"`
}

type cartItemForm struct {
	ProductDetailID string `json:"productDetailId" validate:"required"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func cleanContact(c domain.Contact) domain.Contact {
	return domain.Contact{
		Email:     textutil.CleanEmail(c.Email),
		FirstName: textutil.CleanText(c.FirstName, 100),
		LastName:  textutil.CleanText(c.LastName, 100),
		Phone:     textutil.CleanPhone(c.Phone),
	}
}

func cleanShipping(s domain.ShippingAddress) domain.ShippingAddress {
	return domain.ShippingAddress{
		AddressType: textutil.CleanText(s.AddressType, 32),
		FirstName:   textutil.CleanText(s.FirstName, 100),
		LastName:    textutil.CleanText(s.LastName, 100),
		AptSuite:    textutil.CleanText(s.AptSuite, 100),
		Address:     textutil.CleanText(s.Address, 255),
		City:        textutil.CleanText(s.City, 100),
		State:       textutil.CleanText(s.State, 100),
		PostalCode:  strings.ToUpper(textutil.CleanText(s.PostalCode, 32)),
		Country:     textutil.CountryCode(s.Country),
	}
}

func validateContact(v *validator.Validate, c domain.Contact) error {
	return fieldErrors(v.Struct(contactForm(c)))
}

func validateShipping(v *validator.Validate, s domain.ShippingAddress) error {
	return fieldErrors(v.Struct(shippingForm(s)))
}

func fieldErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"_": "invalid input"}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
	}
	return &ValidationError{Fields: fields}
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "gt":
		return "must be greater than " + param
	default:
		return "is invalid"
	}
}
