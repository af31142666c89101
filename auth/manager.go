package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/swecha/corpus-contrib/network"
)

// API is the part of the corpus API the manager drives. *network.Client implements it.
type API interface {
	Login(ctx context.Context, phone, password string) (string, error)
	Me(ctx context.Context, token string) (network.User, error)
	SendLoginOTP(ctx context.Context, phone string) error
	VerifyLoginOTP(ctx context.Context, phone, otp string) (string, error)
	SendSignupOTP(ctx context.Context, phone string) error
	VerifySignupOTP(ctx context.Context, req network.SignupRequest) error
	InitForgotPassword(ctx context.Context, phone string) (string, error)
	ConfirmForgotPassword(ctx context.Context, req network.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error
}

// Manager runs the authentication operations. It keeps no state of its own: every operation
// works on the Session and PendingFlow it is given, and a persisted token belongs to its Session.
type Manager struct {
	api    API
	logger log.Logger
}

// NewManager ...
func NewManager(api API, logger log.Logger) *Manager {
	return &Manager{
		api:    api,
		logger: logger,
	}
}

// LoginWithPassword exchanges the credentials for a token, then loads the identity behind it.
// The session is authenticated only if both calls succeed; on any failure it holds no token,
// neither in memory nor in its store.
func (m *Manager) LoginWithPassword(ctx context.Context, s *Session, phone, password string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return network.NewValidationError("phone", "Please enter both phone number and password")
	}

	m.Logout(s)

	token, err := m.api.Login(ctx, phone, password)
	if err != nil {
		return credentialError(ErrInvalidCredentials, err)
	}

	return m.completeLogin(ctx, s, token)
}

// RequestOTP sends an OTP for the flow and moves it to StepAwaitingOTP. Calling it again while the
// flow awaits the OTP sends a new one; phone may then be empty to reuse the captured number.
func (m *Manager) RequestOTP(ctx context.Context, f *PendingFlow, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" && f.AwaitingOTP() {
		phone = f.Phone
	}
	if phone == "" {
		return network.NewValidationError("phone_number", "Please enter your phone number")
	}

	var referenceID string
	var err error
	switch f.Kind {
	case FlowLoginOTP:
		err = m.api.SendLoginOTP(ctx, phone)
	case FlowSignup:
		err = m.api.SendSignupOTP(ctx, phone)
	case FlowForgotPassword:
		referenceID, err = m.api.InitForgotPassword(ctx, phone)
	default:
		return fmt.Errorf("unknown flow kind: %q", f.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOTPDispatchFailed, err)
	}

	if f.AwaitingOTP() {
		m.logger.Debugf("OTP resent for %s flow", f.Kind)
	}
	if f.Fields == nil {
		f.Fields = map[string]string{}
	}
	f.Step = StepAwaitingOTP
	f.Phone = phone
	if referenceID != "" {
		f.ReferenceID = referenceID
	}
	return nil
}

// VerifyOTP completes the flow with otp. A login OTP flow authenticates s; signup and
// forgot-password flows leave s untouched, a password login has to follow. The flow is reset on success.
func (m *Manager) VerifyOTP(ctx context.Context, s *Session, f *PendingFlow, otp string, c Completion) error {
	if !f.AwaitingOTP() {
		return network.NewValidationError("step", "Please request an OTP first")
	}
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return network.NewValidationError("otp_code", "Please enter the OTP")
	}

	var err error
	switch f.Kind {
	case FlowLoginOTP:
		err = m.verifyLoginOTP(ctx, s, f.Phone, otp)
	case FlowSignup:
		err = m.verifySignup(ctx, f, otp, c)
	case FlowForgotPassword:
		err = m.confirmReset(ctx, f.Phone, otp, c)
	default:
		return fmt.Errorf("unknown flow kind: %q", f.Kind)
	}
	if err != nil {
		return err
	}

	f.reset()
	return nil
}

func (m *Manager) verifyLoginOTP(ctx context.Context, s *Session, phone, otp string) error {
	m.Logout(s)

	token, err := m.api.VerifyLoginOTP(ctx, phone, otp)
	if err != nil {
		return credentialError(ErrOTPInvalid, err)
	}

	return m.completeLogin(ctx, s, token)
}

func (m *Manager) verifySignup(ctx context.Context, f *PendingFlow, otp string, c Completion) error {
	if f.Fields == nil {
		f.Fields = map[string]string{}
	}
	f.Fields["name"] = strings.TrimSpace(c.Name)
	f.Fields["email"] = strings.TrimSpace(c.Email)

	if err := validateSignup(c); err != nil {
		return err
	}

	err := m.api.VerifySignupOTP(ctx, network.SignupRequest{
		PhoneNumber:     f.Phone,
		OTPCode:         otp,
		Name:            strings.TrimSpace(c.Name),
		Email:           strings.TrimSpace(c.Email),
		Password:        c.Password,
		ConfirmPassword: c.ConfirmPassword,
		HasGivenConsent: c.HasGivenConsent,
	})
	if err != nil {
		return credentialError(ErrOTPInvalid, err)
	}

	m.logger.Infof("Account created for %s", f.Phone)
	return nil
}

func (m *Manager) confirmReset(ctx context.Context, phone, otp string, c Completion) error {
	if err := validateReset(c); err != nil {
		return err
	}

	err := m.api.ConfirmForgotPassword(ctx, network.ResetPasswordRequest{
		PhoneNumber:     phone,
		OTPCode:         otp,
		NewPassword:     c.Password,
		ConfirmPassword: c.ConfirmPassword,
	})
	if err != nil {
		return credentialError(ErrOTPInvalid, err)
	}

	m.logger.Infof("Password reset for %s", phone)
	return nil
}

// Back returns the flow to StepAwaitingPhone, discarding what it captured.
func (m *Manager) Back(f *PendingFlow) {
	f.reset()
}

// Reauthenticate validates a held token that is not yet marked authenticated, e.g. after a restart.
// Any failure logs the session out.
func (m *Manager) Reauthenticate(ctx context.Context, s *Session) (bool, error) {
	if s.Authenticated {
		return true, nil
	}
	if !s.HasToken() {
		return false, nil
	}

	user, err := m.api.Me(ctx, s.Token)
	if err != nil {
		m.logger.Warnf("Stored token rejected, logging out: %s", err)
		m.Logout(s)
		return false, fmt.Errorf("%w: %w", ErrIdentityFetchFailed, err)
	}

	s.authenticate(s.Token, user)
	m.logger.Infof("Re-authenticated as %s", user.Name)
	return true, nil
}

// Restore loads the token persisted for s into it, if s holds none, and validates it.
func (m *Manager) Restore(ctx context.Context, s *Session) (bool, error) {
	if !s.HasToken() {
		token, err := s.store().Load()
		if err != nil {
			return false, fmt.Errorf("load token: %w", err)
		}
		if token == "" {
			return false, nil
		}
		s.Token = token
	}

	return m.Reauthenticate(ctx, s)
}

// Logout clears the session and its persisted token. It never calls the API and can be called any number of times.
func (m *Manager) Logout(s *Session) {
	s.clear()
	if err := s.store().Clear(); err != nil {
		m.logger.Warnf("Failed to clear stored token: %s", err)
	}
}

// Expire logs s out if err says the API rejected its token. It reports whether it did.
func (m *Manager) Expire(s *Session, err error) bool {
	if err == nil || !errors.Is(err, network.ErrAuth) || !s.HasToken() {
		return false
	}
	m.logger.Warnf("Session expired, logging out: %s", err)
	m.Logout(s)
	return true
}

// ChangePassword ...
func (m *Manager) ChangePassword(ctx context.Context, s *Session, currentPassword, newPassword, confirmPassword string) error {
	if !s.Authenticated {
		return ErrNotAuthenticated
	}
	if err := validatePasswordChange(currentPassword, newPassword, confirmPassword); err != nil {
		return err
	}

	if err := m.api.ChangePassword(ctx, s.Token, currentPassword, newPassword); err != nil {
		m.Expire(s, err)
		return fmt.Errorf("change password: %w", err)
	}

	m.logger.Donef("Password changed successfully!")
	return nil
}

// RefreshProfile reloads the identity of an authenticated session.
func (m *Manager) RefreshProfile(ctx context.Context, s *Session) error {
	if !s.Authenticated {
		return ErrNotAuthenticated
	}

	user, err := m.api.Me(ctx, s.Token)
	if err != nil {
		m.Expire(s, err)
		return fmt.Errorf("refresh profile: %w", err)
	}

	s.User = &user
	return nil
}

func (m *Manager) completeLogin(ctx context.Context, s *Session, token string) error {
	user, err := m.api.Me(ctx, token)
	if err != nil {
		m.Logout(s)
		return fmt.Errorf("%w: %w", ErrIdentityFetchFailed, err)
	}

	s.authenticate(token, user)
	if err := s.store().Save(token); err != nil {
		m.logger.Warnf("Failed to store token: %s", err)
	}
	m.logger.Donef("Logged in as %s", user.Name)
	return nil
}

// credentialError classifies a rejected credential or OTP exchange. Client errors become class;
// transport, server and malformed responses keep their own class.
func credentialError(class error, err error) error {
	status := network.StatusCode(err)
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", class, err)
	}
	return err
}
