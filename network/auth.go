package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// User is the identity record returned by /auth/me.
type User struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	TotalContributions int    `json:"total_contributions"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTPCode     string `json:"otp_code"`
}

// SignupRequest ...
type SignupRequest struct {
	PhoneNumber     string `json:"phone_number"`
	OTPCode         string `json:"otp_code"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	HasGivenConsent bool   `json:"has_given_consent"`
}

// ResetPasswordRequest ...
type ResetPasswordRequest struct {
	PhoneNumber     string `json:"phone_number"`
	OTPCode         string `json:"otp_code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type forgotPasswordResponse struct {
	ReferenceID string `json:"reference_id"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login exchanges phone and password for a bearer token.
func (c *Client) Login(ctx context.Context, phone, password string) (string, error) {
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", loginRequest{Phone: phone, Password: password}, http.StatusOK, &resp); err != nil {
		return "", err
	}
	return accessToken(resp)
}

// Me fetches the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, http.StatusOK, &user); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		return User{}, fmt.Errorf("%w: identity without id", ErrUnexpectedResponse)
	}
	return user, nil
}

// SendLoginOTP ...
func (c *Client) SendLoginOTP(ctx context.Context, phone string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/login/send-otp", "", phoneRequest{PhoneNumber: phone}, http.StatusOK, nil)
}

// VerifyLoginOTP exchanges a login OTP for a bearer token.
func (c *Client) VerifyLoginOTP(ctx context.Context, phone, otp string) (string, error) {
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login/verify-otp", "", verifyOTPRequest{PhoneNumber: phone, OTPCode: otp}, http.StatusOK, &resp); err != nil {
		return "", err
	}
	return accessToken(resp)
}

// SendSignupOTP ...
func (c *Client) SendSignupOTP(ctx context.Context, phone string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/signup/send-otp", "", phoneRequest{PhoneNumber: phone}, http.StatusOK, nil)
}

// VerifySignupOTP creates the account. It does not log the new account in.
func (c *Client) VerifySignupOTP(ctx context.Context, req SignupRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/signup/verify-otp", "", req, http.StatusOK, nil)
}

// InitForgotPassword dispatches a reset OTP and returns the reference id the API assigned to it.
// The reference id is optional: a 200 without a JSON body yields "".
func (c *Client) InitForgotPassword(ctx context.Context, phone string) (string, error) {
	var resp forgotPasswordResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/forgot-password/init", "", phoneRequest{PhoneNumber: phone}, http.StatusOK, &resp)
	if err != nil && !errors.Is(err, ErrUnexpectedResponse) {
		return "", err
	}
	return resp.ReferenceID, nil
}

// ConfirmForgotPassword ...
func (c *Client) ConfirmForgotPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/forgot-password/confirm", "", req, http.StatusOK, nil)
}

// ChangePassword ...
func (c *Client) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	req := changePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	return c.doJSON(ctx, http.MethodPost, "/auth/change-password", token, req, http.StatusOK, nil)
}

func accessToken(resp tokenResponse) (string, error) {
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: no access_token in response", ErrUnexpectedResponse)
	}
	return resp.AccessToken, nil
}
