package auth

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swecha/corpus-contrib/network"
)

type stubAPI struct {
	calls []string

	loginToken string
	loginErr   error
	user       network.User
	meErr      error

	sendErr    error
	reference  string
	verifyErr  error
	otpToken   string
	signupReq  network.SignupRequest
	resetReq   network.ResetPasswordRequest
	changeErr  error
	changeArgs []string
}

func (a *stubAPI) Login(_ context.Context, phone, password string) (string, error) {
	a.calls = append(a.calls, "login")
	return a.loginToken, a.loginErr
}

func (a *stubAPI) Me(_ context.Context, token string) (network.User, error) {
	a.calls = append(a.calls, "me:"+token)
	return a.user, a.meErr
}

func (a *stubAPI) SendLoginOTP(context.Context, string) error {
	a.calls = append(a.calls, "login/send-otp")
	return a.sendErr
}

func (a *stubAPI) VerifyLoginOTP(context.Context, string, string) (string, error) {
	a.calls = append(a.calls, "login/verify-otp")
	return a.otpToken, a.verifyErr
}

func (a *stubAPI) SendSignupOTP(context.Context, string) error {
	a.calls = append(a.calls, "signup/send-otp")
	return a.sendErr
}

func (a *stubAPI) VerifySignupOTP(_ context.Context, req network.SignupRequest) error {
	a.calls = append(a.calls, "signup/verify-otp")
	a.signupReq = req
	return a.verifyErr
}

func (a *stubAPI) InitForgotPassword(context.Context, string) (string, error) {
	a.calls = append(a.calls, "forgot-password/init")
	return a.reference, a.sendErr
}

func (a *stubAPI) ConfirmForgotPassword(_ context.Context, req network.ResetPasswordRequest) error {
	a.calls = append(a.calls, "forgot-password/confirm")
	a.resetReq = req
	return a.verifyErr
}

func (a *stubAPI) ChangePassword(_ context.Context, token, current, newPassword string) error {
	a.calls = append(a.calls, "change-password")
	a.changeArgs = []string{token, current, newPassword}
	return a.changeErr
}

type memoryTokenStore struct {
	token   string
	saves   int
	clears  int
	loadErr error
}

func (s *memoryTokenStore) Load() (string, error) { return s.token, s.loadErr }
func (s *memoryTokenStore) Save(token string) error {
	s.saves++
	s.token = token
	return nil
}
func (s *memoryTokenStore) Clear() error {
	s.clears++
	s.token = ""
	return nil
}

var asha = network.User{ID: "u-1", Name: "Asha", Phone: "9999999999", Email: "asha@example.com"}

func statusErr(code int, detail string) error {
	return &network.StatusError{StatusCode: code, Detail: detail}
}

func newTestManager(api *stubAPI) *Manager {
	return NewManager(api, log.NewLogger())
}

func newStoredSession(token string) (*Session, *memoryTokenStore) {
	tokens := &memoryTokenStore{token: token}
	return NewPersistentSession(tokens), tokens
}

func assertLoggedOut(t *testing.T, s *Session) {
	t.Helper()
	assert.False(t, s.Authenticated)
	assert.Empty(t, s.Token)
	assert.Nil(t, s.User)
}

func TestLoginWithPassword(t *testing.T) {
	api := &stubAPI{loginToken: "abc", user: asha}
	manager := newTestManager(api)
	s, tokens := newStoredSession("")

	require.NoError(t, manager.LoginWithPassword(context.Background(), s, " 9999999999 ", "secret"))

	assert.True(t, s.Authenticated)
	assert.Equal(t, "abc", s.Token)
	assert.Equal(t, "u-1", s.UserID())
	assert.Equal(t, []string{"login", "me:abc"}, api.calls)
	assert.Equal(t, "abc", tokens.token)
}

func TestLoginWithPassword_failures(t *testing.T) {
	tests := []struct {
		name      string
		api       *stubAPI
		wantIs    []error
		wantCalls []string
	}{
		{
			name:      "rejected credentials",
			api:       &stubAPI{loginErr: statusErr(http.StatusUnauthorized, "Incorrect phone number or password")},
			wantIs:    []error{ErrInvalidCredentials, network.ErrAuth},
			wantCalls: []string{"login"},
		},
		{
			name:      "unprocessable credentials",
			api:       &stubAPI{loginErr: statusErr(http.StatusUnprocessableEntity, "invalid phone")},
			wantIs:    []error{ErrInvalidCredentials},
			wantCalls: []string{"login"},
		},
		{
			name:      "transport failure",
			api:       &stubAPI{loginErr: errors.Join(network.ErrTransport, context.DeadlineExceeded)},
			wantIs:    []error{network.ErrTransport},
			wantCalls: []string{"login"},
		},
		{
			name:      "identity fetch fails after token",
			api:       &stubAPI{loginToken: "abc", meErr: statusErr(http.StatusInternalServerError, "")},
			wantIs:    []error{ErrIdentityFetchFailed, network.ErrServer},
			wantCalls: []string{"login", "me:abc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(tt.api)
			tokens := &memoryTokenStore{token: "old"}
			s := &Session{Authenticated: true, Token: "old", User: &asha, tokens: tokens}

			err := manager.LoginWithPassword(context.Background(), s, "9999999999", "secret")
			require.Error(t, err)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
			assertLoggedOut(t, s)
			assert.Equal(t, tt.wantCalls, tt.api.calls)
			assert.Empty(t, tokens.token)
		})
	}
}

func TestLoginWithPassword_transportIsNotInvalidCredentials(t *testing.T) {
	api := &stubAPI{loginErr: errors.Join(network.ErrTransport, context.DeadlineExceeded)}
	manager := newTestManager(api)

	err := manager.LoginWithPassword(context.Background(), NewSession(), "1", "2")
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithPassword_requiresBothFields(t *testing.T) {
	for _, input := range [][2]string{{"", "secret"}, {"9999999999", ""}, {"  ", "secret"}} {
		api := &stubAPI{}
		manager := newTestManager(api)

		err := manager.LoginWithPassword(context.Background(), NewSession(), input[0], input[1])
		assert.ErrorIs(t, err, network.ErrValidation)
		assert.Empty(t, api.calls)
	}
}

func TestLogout_isIdempotent(t *testing.T) {
	manager := newTestManager(&stubAPI{})
	tokens := &memoryTokenStore{token: "abc"}
	s := &Session{Authenticated: true, Token: "abc", User: &asha, tokens: tokens}

	manager.Logout(s)
	first := *s
	manager.Logout(s)

	assert.Equal(t, first, *s)
	assertLoggedOut(t, s)
	assert.Equal(t, 2, tokens.clears)
}

func TestRequestOTP(t *testing.T) {
	tests := []struct {
		kind     FlowKind
		wantCall string
	}{
		{kind: FlowLoginOTP, wantCall: "login/send-otp"},
		{kind: FlowSignup, wantCall: "signup/send-otp"},
		{kind: FlowForgotPassword, wantCall: "forgot-password/init"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			api := &stubAPI{reference: "ref-1"}
			manager := newTestManager(api)
			f := NewFlow(tt.kind)

			require.NoError(t, manager.RequestOTP(context.Background(), f, "9999999999"))
			assert.Equal(t, StepAwaitingOTP, f.Step)
			assert.Equal(t, "9999999999", f.Phone)
			if tt.kind == FlowForgotPassword {
				assert.Equal(t, "ref-1", f.ReferenceID)
			} else {
				assert.Empty(t, f.ReferenceID)
			}

			// resend keeps the step and reuses the phone
			require.NoError(t, manager.RequestOTP(context.Background(), f, ""))
			assert.Equal(t, StepAwaitingOTP, f.Step)
			assert.Equal(t, "9999999999", f.Phone)
			assert.Equal(t, []string{tt.wantCall, tt.wantCall}, api.calls)
		})
	}
}

func TestRequestOTP_failures(t *testing.T) {
	api := &stubAPI{sendErr: statusErr(http.StatusBadRequest, "invalid phone")}
	manager := newTestManager(api)
	f := NewFlow(FlowSignup)

	err := manager.RequestOTP(context.Background(), f, "123")
	assert.ErrorIs(t, err, ErrOTPDispatchFailed)
	assert.Equal(t, StepAwaitingPhone, f.Step)
	assert.Empty(t, f.Phone)

	err = manager.RequestOTP(context.Background(), f, "")
	assert.ErrorIs(t, err, network.ErrValidation)
	assert.Len(t, api.calls, 1)
}

func TestVerifyOTP_loginOTP(t *testing.T) {
	api := &stubAPI{otpToken: "otp-token", user: asha}
	manager := newTestManager(api)
	s := NewSession()
	f := &PendingFlow{Kind: FlowLoginOTP, Step: StepAwaitingOTP, Phone: "9999999999", Fields: map[string]string{}}

	require.NoError(t, manager.VerifyOTP(context.Background(), s, f, "123456", Completion{}))

	assert.True(t, s.Authenticated)
	assert.Equal(t, "otp-token", s.Token)
	assert.Equal(t, []string{"login/verify-otp", "me:otp-token"}, api.calls)
	assert.Equal(t, StepAwaitingPhone, f.Step)
	assert.Empty(t, f.Phone)
}

func TestVerifyOTP_loginOTPIdentityFailure(t *testing.T) {
	api := &stubAPI{otpToken: "otp-token", meErr: statusErr(http.StatusInternalServerError, "")}
	manager := newTestManager(api)
	s := NewSession()
	f := &PendingFlow{Kind: FlowLoginOTP, Step: StepAwaitingOTP, Phone: "9999999999", Fields: map[string]string{}}

	err := manager.VerifyOTP(context.Background(), s, f, "123456", Completion{})
	assert.ErrorIs(t, err, ErrIdentityFetchFailed)
	assertLoggedOut(t, s)
	assert.Equal(t, StepAwaitingOTP, f.Step, "a failed attempt keeps the flow")
}

func TestVerifyOTP_invalidOTP(t *testing.T) {
	api := &stubAPI{verifyErr: statusErr(http.StatusBadRequest, "Invalid OTP")}
	manager := newTestManager(api)
	f := &PendingFlow{Kind: FlowLoginOTP, Step: StepAwaitingOTP, Phone: "9999999999", Fields: map[string]string{}}

	err := manager.VerifyOTP(context.Background(), NewSession(), f, "000000", Completion{})
	assert.ErrorIs(t, err, ErrOTPInvalid)
	assert.Equal(t, "Invalid OTP", network.Detail(err))
}

func TestVerifyOTP_requiresAwaitingOTP(t *testing.T) {
	api := &stubAPI{}
	manager := newTestManager(api)

	err := manager.VerifyOTP(context.Background(), NewSession(), NewFlow(FlowLoginOTP), "123456", Completion{})
	assert.ErrorIs(t, err, network.ErrValidation)

	f := &PendingFlow{Kind: FlowLoginOTP, Step: StepAwaitingOTP, Phone: "1", Fields: map[string]string{}}
	err = manager.VerifyOTP(context.Background(), NewSession(), f, "  ", Completion{})
	assert.ErrorIs(t, err, network.ErrValidation)
	assert.Empty(t, api.calls)
}

func validSignup() Completion {
	return Completion{
		Name:            "Asha",
		Email:           "asha@example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
		HasGivenConsent: true,
	}
}

func TestVerifyOTP_signup(t *testing.T) {
	api := &stubAPI{}
	manager := newTestManager(api)
	s := NewSession()
	f := &PendingFlow{Kind: FlowSignup, Step: StepAwaitingOTP, Phone: "9999999999", Fields: map[string]string{}}

	require.NoError(t, manager.VerifyOTP(context.Background(), s, f, "123456", validSignup()))

	assert.Equal(t, network.SignupRequest{
		PhoneNumber:     "9999999999",
		OTPCode:         "123456",
		Name:            "Asha",
		Email:           "asha@example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
		HasGivenConsent: true,
	}, api.signupReq)
	assertLoggedOut(t, s)
	assert.Equal(t, StepAwaitingPhone, f.Step)
	assert.Empty(t, f.Fields)
}

func TestVerifyOTP_signupWithLiteralFlow(t *testing.T) {
	api := &stubAPI{}
	manager := newTestManager(api)
	f := &PendingFlow{Kind: FlowSignup}

	require.NoError(t, manager.RequestOTP(context.Background(), f, "9999999999"))
	require.NoError(t, manager.VerifyOTP(context.Background(), NewSession(), f, "123456", validSignup()))

	assert.Equal(t, []string{"signup/send-otp", "signup/verify-otp"}, api.calls)
	assert.Equal(t, "Asha", api.signupReq.Name)
	assert.Equal(t, StepAwaitingPhone, f.Step)
}

func TestVerifyOTP_signupValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Completion)
		want   string
	}{
		{name: "missing name", modify: func(c *Completion) { c.Name = " " }, want: "Please fill in all fields."},
		{name: "bad email", modify: func(c *Completion) { c.Email = "asha@" }, want: "Please enter a valid email address."},
		{name: "mismatch", modify: func(c *Completion) { c.ConfirmPassword = "different1" }, want: "Passwords don't match."},
		{name: "short", modify: func(c *Completion) { c.Password, c.ConfirmPassword = "seven77", "seven77" }, want: "Password must be at least 8 characters long."},
		{name: "no consent", modify: func(c *Completion) { c.HasGivenConsent = false }, want: "Please agree to the terms and conditions."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubAPI{}
			manager := newTestManager(api)
			f := &PendingFlow{Kind: FlowSignup, Step: StepAwaitingOTP, Phone: "9999999999", Fields: map[string]string{}}
			c := validSignup()
			tt.modify(&c)

			err := manager.VerifyOTP(context.Background(), NewSession(), f, "123456", c)
			require.EqualError(t, err, tt.want)
			assert.ErrorIs(t, err, network.ErrValidation)
			assert.Empty(t, api.calls)
			assert.Equal(t, StepAwaitingOTP, f.Step)
		})
	}
}

func TestVerifyOTP_forgotPassword(t *testing.T) {
	api := &stubAPI{}
	manager := newTestManager(api)
	s := NewSession()
	f := &PendingFlow{Kind: FlowForgotPassword, Step: StepAwaitingOTP, Phone: "9999999999", ReferenceID: "ref-1", Fields: map[string]string{}}

	err := manager.VerifyOTP(context.Background(), s, f, "123456", Completion{Password: "12345", ConfirmPassword: "12345"})
	require.EqualError(t, err, "Password must be at least 6 characters long.")

	err = manager.VerifyOTP(context.Background(), s, f, "123456", Completion{Password: "123456", ConfirmPassword: "654321"})
	require.ErrorIs(t, err, network.ErrValidation)
	assert.Empty(t, api.calls)

	require.NoError(t, manager.VerifyOTP(context.Background(), s, f, "123456", Completion{Password: "123456", ConfirmPassword: "123456"}))
	assert.Equal(t, network.ResetPasswordRequest{
		PhoneNumber:     "9999999999",
		OTPCode:         "123456",
		NewPassword:     "123456",
		ConfirmPassword: "123456",
	}, api.resetReq)
	assertLoggedOut(t, s)
	assert.Equal(t, StepAwaitingPhone, f.Step)
	assert.Empty(t, f.ReferenceID)
}

func TestBack(t *testing.T) {
	manager := newTestManager(&stubAPI{})
	f := &PendingFlow{Kind: FlowSignup, Step: StepAwaitingOTP, Phone: "9999999999", ReferenceID: "r", Fields: map[string]string{"name": "Asha"}}

	manager.Back(f)

	assert.Equal(t, StepAwaitingPhone, f.Step)
	assert.Empty(t, f.Phone)
	assert.Empty(t, f.ReferenceID)
	assert.Empty(t, f.Fields)
	assert.Equal(t, FlowSignup, f.Kind)
}

func TestReauthenticate(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		api := &stubAPI{user: asha}
		manager := newTestManager(api)
		s := &Session{Token: "abc"}

		ok, err := manager.Reauthenticate(context.Background(), s)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, s.Authenticated)
		assert.Equal(t, "u-1", s.UserID())
	})

	t.Run("rejected token logs out", func(t *testing.T) {
		api := &stubAPI{meErr: statusErr(http.StatusUnauthorized, "Could not validate credentials")}
		manager := newTestManager(api)
		s, tokens := newStoredSession("abc")
		s.Token = "abc"

		ok, err := manager.Reauthenticate(context.Background(), s)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrIdentityFetchFailed)
		assertLoggedOut(t, s)
		assert.Empty(t, tokens.token)
	})

	t.Run("no token", func(t *testing.T) {
		api := &stubAPI{}
		manager := newTestManager(api)

		ok, err := manager.Reauthenticate(context.Background(), NewSession())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, api.calls)
	})

	t.Run("already authenticated", func(t *testing.T) {
		api := &stubAPI{}
		manager := newTestManager(api)

		ok, err := manager.Reauthenticate(context.Background(), &Session{Authenticated: true, Token: "abc", User: &asha})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, api.calls)
	})
}

func TestRestore(t *testing.T) {
	api := &stubAPI{user: asha}
	manager := newTestManager(api)
	s, _ := newStoredSession("persisted")

	ok, err := manager.Restore(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", s.Token)
	assert.Equal(t, []string{"me:persisted"}, api.calls)

	ok, err = newTestManager(&stubAPI{}).Restore(context.Background(), NewSession())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestore_sessionsKeepTheirOwnTokens(t *testing.T) {
	api := &stubAPI{loginToken: "asha-token", user: asha}
	manager := newTestManager(api)
	ashaSession, ashaTokens := newStoredSession("")
	require.NoError(t, manager.LoginWithPassword(context.Background(), ashaSession, "9999999999", "secret"))

	ravi, raviTokens := newStoredSession("")
	ok, err := manager.Restore(context.Background(), ravi)
	require.NoError(t, err)
	assert.False(t, ok, "a new context does not inherit another context's login")
	assertLoggedOut(t, ravi)

	manager.Logout(ravi)
	assert.Equal(t, 1, raviTokens.clears)
	assert.Equal(t, "asha-token", ashaTokens.token, "logging out one context keeps the other's token")
	assert.True(t, ashaSession.Authenticated)

	restored := NewPersistentSession(ashaTokens)
	ok, err = manager.Restore(context.Background(), restored)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-1", restored.UserID())
}

func TestLoginWithPassword_failureClearsPersistedToken(t *testing.T) {
	api := &stubAPI{loginErr: statusErr(http.StatusUnauthorized, "Incorrect phone number or password")}
	manager := newTestManager(api)
	s, tokens := newStoredSession("stale")

	err := manager.LoginWithPassword(context.Background(), s, "9999999999", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, tokens.token)

	ok, err := manager.Restore(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, ok, "the stale token is not restored after a failed login")
	assert.Equal(t, []string{"login"}, api.calls)
}

func TestExpire(t *testing.T) {
	manager := newTestManager(&stubAPI{})

	s := &Session{Authenticated: true, Token: "abc", User: &asha}
	assert.False(t, manager.Expire(s, statusErr(http.StatusNotFound, "")))
	assert.False(t, manager.Expire(s, nil))
	assert.True(t, s.Authenticated)

	assert.True(t, manager.Expire(s, statusErr(http.StatusForbidden, "")))
	assertLoggedOut(t, s)
	assert.False(t, manager.Expire(s, statusErr(http.StatusForbidden, "")))
}

func TestChangePassword(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		manager := newTestManager(&stubAPI{})
		err := manager.ChangePassword(context.Background(), NewSession(), "old", "newpassword", "newpassword")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("validation", func(t *testing.T) {
		api := &stubAPI{}
		manager := newTestManager(api)
		s := &Session{Authenticated: true, Token: "abc", User: &asha}

		assert.EqualError(t, manager.ChangePassword(context.Background(), s, "", "newpassword", "newpassword"), "Please fill in all password fields")
		assert.EqualError(t, manager.ChangePassword(context.Background(), s, "old", "newpassword", "newpasswore"), "New passwords don't match")
		assert.EqualError(t, manager.ChangePassword(context.Background(), s, "old", "short", "short"), "New password must be at least 8 characters long")
		assert.Empty(t, api.calls)
	})

	t.Run("success", func(t *testing.T) {
		api := &stubAPI{}
		manager := newTestManager(api)
		s := &Session{Authenticated: true, Token: "abc", User: &asha}

		require.NoError(t, manager.ChangePassword(context.Background(), s, "old", "newpassword", "newpassword"))
		assert.Equal(t, []string{"abc", "old", "newpassword"}, api.changeArgs)
	})

	t.Run("expired token logs out", func(t *testing.T) {
		api := &stubAPI{changeErr: statusErr(http.StatusUnauthorized, "")}
		manager := newTestManager(api)
		s := &Session{Authenticated: true, Token: "abc", User: &asha}

		err := manager.ChangePassword(context.Background(), s, "old", "newpassword", "newpassword")
		assert.ErrorIs(t, err, network.ErrAuth)
		assertLoggedOut(t, s)
	})
}

func TestRefreshProfile(t *testing.T) {
	updated := asha
	updated.TotalContributions = 5
	api := &stubAPI{user: updated}
	manager := newTestManager(api)
	s := &Session{Authenticated: true, Token: "abc", User: &asha}

	require.NoError(t, manager.RefreshProfile(context.Background(), s))
	assert.Equal(t, 5, s.User.TotalContributions)

	assert.ErrorIs(t, manager.RefreshProfile(context.Background(), NewSession()), ErrNotAuthenticated)
}

func TestFileTokenStore(t *testing.T) {
	store, err := NewFileTokenStore(filepath.Join(t.TempDir(), "nested", "token"))
	require.NoError(t, err)

	token, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save("abc"))
	token, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.FileExists(t, store.Path())

	require.NoError(t, store.Clear())
	assert.NoFileExists(t, store.Path())
	require.NoError(t, store.Clear())

	_, err = NewFileTokenStore(" ")
	assert.Error(t, err)
}
