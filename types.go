package credcore

import (
	"context"
	"slices"
	"time"
)

// Role is the closed set of account roles carried into full tokens.
type Role string

const (
	RoleStandard      Role = "standard"
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RoleModerator, RoleAdministrator:
		return true
	}
	return false
}

// CodePurpose selects one of the two outstanding-code slots on an account.
type CodePurpose uint8

const (
	PurposeEmailVerification CodePurpose = iota + 1
	PurposePasswordReset
)

func (p CodePurpose) String() string {
	switch p {
	case PurposeEmailVerification:
		return "email_verification"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// OutstandingCode is the stored form of a single-use code. The plaintext is
// never persisted.
type OutstandingCode struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts,omitempty"`
}

// TrustedDevice exempts a fingerprint from second-factor challenges until
// ExpiresAt.
type TrustedDevice struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Label       string    `json:"label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExternalIdentity links an account to a subject at an outside provider.
type ExternalIdentity struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

// Account is the durable security record for one user.
//
// Stores treat it as an opaque document keyed by ID with a unique Email.
type Account struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	// PasswordHash is empty for accounts created through an external identity.
	PasswordHash       string             `json:"password_hash,omitempty"`
	Role               Role               `json:"role"`
	EmailVerified      bool               `json:"email_verified"`
	ExternalIdentities []ExternalIdentity `json:"external_identities,omitempty"`

	FailedAttempts int       `json:"failed_attempts,omitempty"`
	LockedUntil    time.Time `json:"locked_until,omitzero"`

	SecondFactor   SecondFactor    `json:"second_factor"`
	TrustedDevices []TrustedDevice `json:"trusted_devices,omitempty"`

	EmailCode *OutstandingCode `json:"email_code,omitempty"`
	ResetCode *OutstandingCode `json:"reset_code,omitempty"`

	LastLoginAt   time.Time `json:"last_login_at,omitzero"`
	LastLoginIP   string    `json:"last_login_ip,omitempty"`
	LastUserAgent string    `json:"last_user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or code pointers
// with a store.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.ExternalIdentities = slices.Clone(a.ExternalIdentities)
	c.TrustedDevices = slices.Clone(a.TrustedDevices)
	if a.EmailCode != nil {
		ec := *a.EmailCode
		c.EmailCode = &ec
	}
	if a.ResetCode != nil {
		rc := *a.ResetCode
		c.ResetCode = &rc
	}
	return &c
}

// HasPassword is false for federated accounts.
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }

func (a *Account) code(p CodePurpose) *OutstandingCode {
	switch p {
	case PurposeEmailVerification:
		return a.EmailCode
	case PurposePasswordReset:
		return a.ResetCode
	}
	return nil
}

func (a *Account) setCode(p CodePurpose, c *OutstandingCode) {
	switch p {
	case PurposeEmailVerification:
		a.EmailCode = c
	case PurposePasswordReset:
		a.ResetCode = c
	}
}

// AccountStore is the persistence collaborator. Implementations must make
// Update an atomic read-modify-write of a single account: fn sees the
// current record and, if it returns nil, its changes are written as one
// unit. If fn returns an error nothing is written and that error is
// returned unchanged.
//
// Lookups return ErrAccountNotFound for unknown keys. Save inserts or
// replaces by ID and returns ErrStoreConflict when the email belongs to a
// different account.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Save(ctx context.Context, acct *Account) error
	Update(ctx context.Context, id string, fn func(*Account) error) (*Account, error)
	Delete(ctx context.Context, id string) error
}

// AccountSummary is the public view of an account returned to callers.
type AccountSummary struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	DisplayName         string    `json:"display_name"`
	Role                Role      `json:"role"`
	EmailVerified       bool      `json:"email_verified"`
	SecondFactorEnabled bool      `json:"second_factor_enabled"`
	CreatedAt           time.Time `json:"created_at"`
}

func summarize(a *Account) AccountSummary {
	return AccountSummary{
		ID:                  a.ID,
		Email:               a.Email,
		DisplayName:         a.DisplayName,
		Role:                a.Role,
		EmailVerified:       a.EmailVerified,
		SecondFactorEnabled: a.SecondFactor.Enabled(),
		CreatedAt:           a.CreatedAt,
	}
}

// RegisterResult is returned by Engine.Register.
type RegisterResult struct {
	Token   string
	Account AccountSummary
	// DeliveryErr is ErrDeliveryFailed when the verification email could
	// not be sent. The account exists regardless.
	DeliveryErr error
}

// ChallengeKind names the second factor a pending token must complete.
type ChallengeKind string

const ChallengeTOTP ChallengeKind = "totp"

// LoginResult is returned by Engine.Login and Engine.LoginExternal. Exactly
// one of Token and PendingToken is set.
type LoginResult struct {
	Token             string
	PendingToken      string
	ChallengeRequired bool
	Challenge         ChallengeKind
	Account           AccountSummary
}

// SecondFactorResult is returned by Engine.VerifySecondFactor. DeviceID is
// set only when the caller asked to remember a device that was not already
// trusted.
type SecondFactorResult struct {
	Token    string
	DeviceID string
	Account  AccountSummary
}

// Provisioning is what an authenticator app needs to enroll.
type Provisioning struct {
	Secret string
	URI    string
	// QRCodePNG is URI rendered as a PNG QR code.
	QRCodePNG []byte
}

// Principal is the caller behind a verified full token. Role is read from
// the store, not from the token.
type Principal struct {
	AccountID string
	Email     string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

// ExternalAssertion is an identity vouched for by an outside provider.
type ExternalAssertion struct {
	Provider      string
	Subject       string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// DeviceRequest is the optional remember-device part of
// VerifySecondFactor.
type DeviceRequest struct {
	Remember bool
	Label    string
}
