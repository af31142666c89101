package auth

import (
	"errors"
)

var (
	// ErrInvalidCredentials is returned when the API rejects the phone number and password.
	ErrInvalidCredentials = errors.New("invalid phone number or password")
	// ErrIdentityFetchFailed is returned when a token was obtained but the profile behind it could not be loaded.
	ErrIdentityFetchFailed = errors.New("failed to fetch user profile")
	// ErrOTPDispatchFailed is returned when the API could not send an OTP.
	ErrOTPDispatchFailed = errors.New("failed to send OTP")
	// ErrOTPInvalid is returned when the API rejects an OTP or the data sent with it.
	ErrOTPInvalid = errors.New("invalid OTP")
	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
