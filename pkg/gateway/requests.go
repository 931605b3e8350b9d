package gateway

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"` //nolint:gosec // request body field
}

// Normalized trims the name and email. The password is sent as typed.
func (r SignupRequest) Normalized() SignupRequest {
	return SignupRequest{
		FullName: strings.TrimSpace(r.FullName),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
	}
}

// Validate checks the request fields. It returns validator.ValidationErrors
// in field order.
func (r SignupRequest) Validate() error { return validate.Struct(r) }

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"` //nolint:gosec // request body field
}

// Normalized trims the email.
func (r LoginRequest) Normalized() LoginRequest {
	return LoginRequest{Email: strings.TrimSpace(r.Email), Password: r.Password}
}

func (r LoginRequest) Validate() error { return validate.Struct(r) }

// ProfileUpdate is the body of PUT /auth/update-profile. Empty fields are
// left unchanged by the backend.
type ProfileUpdate struct {
	FullName   string `json:"fullName,omitempty"`
	ProfilePic string `json:"profilePic,omitempty" validate:"omitempty,datauri|url"`
}

// Empty reports whether the update carries no change.
func (p ProfileUpdate) Empty() bool {
	return strings.TrimSpace(p.FullName) == "" && p.ProfilePic == ""
}

func (p ProfileUpdate) Validate() error { return validate.Struct(p) }
