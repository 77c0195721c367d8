package business

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
)

// LoginPolicy holds the tunable knobs of the login state machine.
type LoginPolicy struct {
	MaxAttemptsPerIP         int
	MaxAttemptsPerIdentifier int
	ThrottleWindow           time.Duration
	ChallengeTokenTTL        time.Duration
	SessionTokenTTL          time.Duration
}

func DefaultLoginPolicy() LoginPolicy {
	return LoginPolicy{
		MaxAttemptsPerIP:         5,
		MaxAttemptsPerIdentifier: 3,
		ThrottleWindow:           time.Minute,
		ChallengeTokenTTL:        5 * time.Minute,
		SessionTokenTTL:          24 * time.Hour,
	}
}

type LoginInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

type RegisterInput struct {
	Email     string
	Username  string
	Name      string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is either a completed session or an escalation to the two
// factor challenge, never both.
type LoginResult struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time

	RequiresTwoFactor bool
	ChallengeToken    string
}

// AuthSessionOrchestrator runs the login state machine: throttle gates,
// credential check, activity check, two factor escalation, session mint.
type AuthSessionOrchestrator struct {
	accounts  repository.AccountRepository
	store     repository.AccessTokenRepository
	access    repository.AccountAccessRepository
	roles     repository.RoleRepository
	creds     *CredentialStore
	twoFactor *TwoFactorEngine
	tokens    *TokenService
	limiter   RateWindow
	recorder  *SecurityEventRecorder
	policy    LoginPolicy

	defaultRole string
}

func NewAuthSessionOrchestrator(
	accounts repository.AccountRepository,
	store repository.AccessTokenRepository,
	access repository.AccountAccessRepository,
	roles repository.RoleRepository,
	creds *CredentialStore,
	twoFactor *TwoFactorEngine,
	tokens *TokenService,
	limiter RateWindow,
	recorder *SecurityEventRecorder,
	policy LoginPolicy,
	defaultRole string,
) *AuthSessionOrchestrator {
	return &AuthSessionOrchestrator{
		accounts:    accounts,
		store:       store,
		access:      access,
		roles:       roles,
		creds:       creds,
		twoFactor:   twoFactor,
		tokens:      tokens,
		limiter:     limiter,
		recorder:    recorder,
		policy:      policy,
		defaultRole: defaultRole,
	}
}

func loginThrottleKey(kind, value string) string {
	return fmt.Sprintf("login_rl:%s:%s", kind, value)
}

// Login authenticates an identifier and password pair. An identifier
// containing an address sign is treated as an email, otherwise a username.
func (o *AuthSessionOrchestrator) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.ToLower(strings.TrimSpace(input.Identifier))
	evtCtx := EventContext{IPAddress: input.IPAddress, UserAgent: input.UserAgent}

	ipResult := o.limiter.Check(ctx, loginThrottleKey("ip", input.IPAddress),
		o.policy.MaxAttemptsPerIP, o.policy.ThrottleWindow)
	if !ipResult.Allowed {
		o.recorder.Record(ctx, EventFailedLoginMultiple, evtCtx,
			frame.JSONMap{"throttled_by": "ip"})
		return nil, &RateLimitedError{RetryAfter: ipResult.RetryAfter}
	}

	idResult := o.limiter.Check(ctx, loginThrottleKey("identifier", identifier),
		o.policy.MaxAttemptsPerIdentifier, o.policy.ThrottleWindow)
	if !idResult.Allowed {
		o.recorder.Record(ctx, EventFailedLoginMultiple, evtCtx,
			frame.JSONMap{"throttled_by": "identifier"})
		return nil, &RateLimitedError{RetryAfter: idResult.RetryAfter}
	}

	account, err := o.lookupAccount(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if account != nil {
		evtCtx.AccountID = account.ID
	}

	if account == nil || !o.creds.VerifyPassword(ctx, account.PasswordHash, input.Password) {
		o.recorder.Record(ctx, EventLoginFailed, evtCtx, frame.JSONMap{"identifier": identifier})
		return nil, ErrInvalidCredential
	}

	if !account.Active {
		o.recorder.Record(ctx, EventLoginFailed, evtCtx, frame.JSONMap{"reason": "inactive"})
		return nil, ErrInactive
	}

	if account.TwoFactorEnabled {
		challenge, _, err := o.tokens.Issue(ctx, account.ID, CapabilityTwoFactorChallenge,
			o.policy.ChallengeTokenTTL, TokenMetadata{IPAddress: input.IPAddress, UserAgent: input.UserAgent})
		if err != nil {
			return nil, err
		}

		o.recorder.Record(ctx, EventTwoFactorChallenge, evtCtx, nil)
		return &LoginResult{
			Account:           account,
			RequiresTwoFactor: true,
			ChallengeToken:    challenge,
		}, nil
	}

	return o.completeLogin(ctx, account, input.IPAddress, input.UserAgent)
}

// VerifyTwoFactor answers a pending challenge. The challenge token is
// consumed exactly once; when two callers race with valid codes, one wins
// the session and the other sees an invalid credential.
func (o *AuthSessionOrchestrator) VerifyTwoFactor(ctx context.Context, challengeToken, code, ipAddress, userAgent string) (*LoginResult, error) {
	claims, _, err := o.tokens.Verify(ctx, challengeToken)
	if err != nil {
		return nil, err
	}
	if claims.Capability != CapabilityTwoFactorChallenge {
		return nil, ErrInvalidCredential
	}

	account, err := o.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredential
	}
	if !account.Active {
		return nil, ErrInactive
	}

	evtCtx := EventContext{AccountID: account.ID, IPAddress: ipAddress, UserAgent: userAgent}
	if err = o.twoFactor.VerifyLoginCode(ctx, account, code, evtCtx); err != nil {
		return nil, err
	}

	won, err := o.tokens.Consume(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInvalidCredential
	}

	return o.completeLogin(ctx, account, ipAddress, userAgent)
}

// Register provisions a password account and opens its first session.
func (o *AuthSessionOrchestrator) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidCredential
	}

	taken, err := o.accounts.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrConflict
	}

	username := strings.ToLower(strings.TrimSpace(input.Username))
	taken, err = o.accounts.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrConflict
	}

	hash, err := o.creds.HashPassword(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Email:        email,
		Username:     username,
		Name:         input.Name,
		PasswordHash: hash,
		Active:       true,
	}
	if err = o.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	if o.defaultRole != "" {
		role, err := o.roles.GetByName(ctx, o.defaultRole)
		if err != nil {
			return nil, err
		}
		if role != nil {
			if err = o.access.AssignRole(ctx, account.ID, role.ID); err != nil {
				return nil, err
			}
		}
	}

	o.recorder.Record(ctx, EventAccountCreated,
		EventContext{AccountID: account.ID, IPAddress: input.IPAddress, UserAgent: input.UserAgent}, nil)

	return o.completeLogin(ctx, account, input.IPAddress, input.UserAgent)
}

// Logout revokes the presented session token.
func (o *AuthSessionOrchestrator) Logout(ctx context.Context, account *models.Account, tokenID string, evtCtx EventContext) error {
	if err := o.tokens.Revoke(ctx, tokenID, account.ID); err != nil {
		return err
	}
	o.recorder.Record(ctx, EventLogout, evtCtx, nil)
	return nil
}

// LogoutAll revokes every token and session the account holds.
func (o *AuthSessionOrchestrator) LogoutAll(ctx context.Context, account *models.Account, evtCtx EventContext) error {
	if err := o.tokens.RevokeAll(ctx, account.ID); err != nil {
		return err
	}
	o.recorder.Record(ctx, EventLogoutAllDevices, evtCtx, nil)
	return nil
}

// ChangePassword rotates the password after re-authentication and revokes
// every outstanding token with it.
func (o *AuthSessionOrchestrator) ChangePassword(ctx context.Context, account *models.Account, current, next string, evtCtx EventContext) error {
	if account.HasPassword() && !o.creds.VerifyPassword(ctx, account.PasswordHash, current) {
		return ErrInvalidCredential
	}

	hash, err := o.creds.HashPassword(ctx, next)
	if err != nil {
		return err
	}
	if err = o.accounts.ResetPassword(ctx, account.ID, hash); err != nil {
		return err
	}
	account.PasswordHash = hash

	o.recorder.Record(ctx, EventPasswordChange, evtCtx, nil)
	return nil
}

// AdminResetPassword forces a new password without the old one.
func (o *AuthSessionOrchestrator) AdminResetPassword(ctx context.Context, account *models.Account, next string, evtCtx EventContext) error {
	hash, err := o.creds.HashPassword(ctx, next)
	if err != nil {
		return err
	}
	if err = o.accounts.ResetPassword(ctx, account.ID, hash); err != nil {
		return err
	}
	account.PasswordHash = hash

	o.recorder.Record(ctx, EventPasswordReset, evtCtx, frame.JSONMap{"by": "admin"})
	return nil
}

// SetActive flips account activation. Deactivating also force logs out.
func (o *AuthSessionOrchestrator) SetActive(ctx context.Context, account *models.Account, active bool, evtCtx EventContext) error {
	if account.Active == active {
		return nil
	}

	account.Active = active
	if err := o.accounts.Save(ctx, account); err != nil {
		return err
	}

	eventType := EventAccountActivated
	if !active {
		eventType = EventAccountDeactivated
		if err := o.tokens.RevokeAll(ctx, account.ID); err != nil {
			return err
		}
	}
	o.recorder.Record(ctx, eventType, evtCtx, nil)
	return nil
}

// Sessions lists the account's live sessions.
func (o *AuthSessionOrchestrator) Sessions(ctx context.Context, account *models.Account) ([]*models.Session, error) {
	return o.store.ListActiveSessions(ctx, account.ID)
}

// RevokeSession drops one session and its token.
func (o *AuthSessionOrchestrator) RevokeSession(ctx context.Context, account *models.Account, sessionID string, evtCtx EventContext) error {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.AccountID != account.ID {
		return ErrNotFound
	}

	if err = o.store.DeleteSession(ctx, sessionID, account.ID); err != nil {
		return err
	}
	o.recorder.Record(ctx, EventLogout, evtCtx, frame.JSONMap{"session_id": sessionID})
	return nil
}

// CompleteSocialLogin opens a session for an account that just passed
// provider reconciliation.
func (o *AuthSessionOrchestrator) CompleteSocialLogin(ctx context.Context, account *models.Account, ipAddress, userAgent string) (*LoginResult, error) {
	if !account.Active {
		return nil, ErrInactive
	}
	return o.completeLogin(ctx, account, ipAddress, userAgent)
}

func (o *AuthSessionOrchestrator) lookupAccount(ctx context.Context, identifier string) (*models.Account, error) {
	if _, err := mail.ParseAddress(identifier); err == nil {
		return o.accounts.GetByEmail(ctx, identifier)
	}
	return o.accounts.GetByUsername(ctx, identifier)
}

func (o *AuthSessionOrchestrator) completeLogin(ctx context.Context, account *models.Account, ipAddress, userAgent string) (*LoginResult, error) {
	signed, record, err := o.tokens.Issue(ctx, account.ID, CapabilitySession,
		o.policy.SessionTokenTTL, TokenMetadata{IPAddress: ipAddress, UserAgent: userAgent})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		AccountID:      account.ID,
		AccessTokenID:  record.ID,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LastActivityAt: now,
		ExpiresAt:      record.ExpiresAt,
	}
	if err = o.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	evtCtx := EventContext{AccountID: account.ID, IPAddress: ipAddress, UserAgent: userAgent}
	o.recordAnomalies(ctx, account, ipAddress, userAgent, evtCtx)

	account.PushLoginRecord(models.LoginRecord{IPAddress: ipAddress, UserAgent: userAgent, At: now})
	account.LastLoginAt = &now
	account.LastLoginIP = ipAddress
	if err = o.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	// A completed login clears the throttle windows it touched.
	o.limiter.Reset(ctx, loginThrottleKey("ip", ipAddress))
	o.limiter.Reset(ctx, loginThrottleKey("identifier", account.Email))
	o.limiter.Reset(ctx, loginThrottleKey("identifier", account.Username))

	o.recorder.Record(ctx, EventLoginSuccessful, evtCtx, nil)

	return &LoginResult{
		Account:   account,
		Token:     signed,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// recordAnomalies flags logins from user agents or addresses the account
// has not seen in its recent history.
func (o *AuthSessionOrchestrator) recordAnomalies(ctx context.Context, account *models.Account, ipAddress, userAgent string, evtCtx EventContext) {
	history := account.LoginRecords()
	if len(history) == 0 {
		return
	}

	knownAgent, knownAddress := false, false
	for _, record := range history {
		if record.UserAgent == userAgent {
			knownAgent = true
		}
		if record.IPAddress == ipAddress {
			knownAddress = true
		}
	}

	if !knownAgent && userAgent != "" {
		o.recorder.Record(ctx, EventLoginNewDevice, evtCtx, nil)
	}
	if !knownAddress && ipAddress != "" {
		o.recorder.Record(ctx, EventLoginNewLocation, evtCtx, nil)
	}
}
