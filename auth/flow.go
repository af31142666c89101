package auth

// FlowKind discriminates the multi-step OTP flows.
type FlowKind string

// Flow kinds.
const (
	FlowLoginOTP       FlowKind = "login_otp"
	FlowSignup         FlowKind = "signup"
	FlowForgotPassword FlowKind = "forgot_password"
)

// Step is the position of a flow.
type Step int

// Steps. Every flow kind has the same shape: a phone number is collected, then the OTP sent to it.
const (
	StepAwaitingPhone Step = 1
	StepAwaitingOTP   Step = 2
)

// PendingFlow is the transient state of one multi-step flow.
type PendingFlow struct {
	Kind        FlowKind
	Step        Step
	Phone       string
	ReferenceID string
	// Fields keeps the non-secret form input of the flow between attempts.
	Fields map[string]string
}

// NewFlow returns a flow of kind awaiting a phone number.
func NewFlow(kind FlowKind) *PendingFlow {
	return &PendingFlow{
		Kind:   kind,
		Step:   StepAwaitingPhone,
		Fields: map[string]string{},
	}
}

// AwaitingOTP ...
func (f *PendingFlow) AwaitingOTP() bool {
	return f.Step == StepAwaitingOTP
}

func (f *PendingFlow) reset() {
	f.Step = StepAwaitingPhone
	f.Phone = ""
	f.ReferenceID = ""
	f.Fields = map[string]string{}
}

// Completion is the extra input that completes a signup or a forgot-password flow.
// Login OTP flows need none of it.
type Completion struct {
	Name  string
	Email string
	// Password is the account password on signup and the new password on reset.
	Password        string
	ConfirmPassword string
	HasGivenConsent bool
}
