package business

import (
	"context"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
)

const (
	totpPeriodSeconds = 30
	// One step of clock skew either side keeps codes from slightly drifted
	// authenticator clocks usable.
	totpSkewSteps = 1
)

// TwoFactorEnrollment is handed to the account holder exactly once, at
// enrollment time. Neither the secret nor the codes are recoverable in the
// clear afterwards without re-authentication.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	RecoveryCodes   []string
}

// TwoFactorEngine drives TOTP enrollment, confirmation and login
// verification.
type TwoFactorEngine struct {
	accounts repository.AccountRepository
	creds    *CredentialStore
	recorder *SecurityEventRecorder
	issuer   string
}

func NewTwoFactorEngine(accounts repository.AccountRepository, creds *CredentialStore, recorder *SecurityEventRecorder, issuer string) *TwoFactorEngine {
	return &TwoFactorEngine{
		accounts: accounts,
		creds:    creds,
		recorder: recorder,
		issuer:   issuer,
	}
}

// Enable provisions a pending secret and recovery codes. Two factor does not
// protect logins until the holder confirms with a valid code.
func (e *TwoFactorEngine) Enable(ctx context.Context, account *models.Account, evtCtx EventContext) (*TwoFactorEnrollment, error) {
	if account.TwoFactorEnabled {
		return nil, ErrConflict
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account.Email,
		Period:      totpPeriodSeconds,
	})
	if err != nil {
		return nil, err
	}

	encryptedSecret, err := e.creds.EncryptSecret(key.Secret())
	if err != nil {
		return nil, err
	}

	codes := e.creds.GenerateRecoveryCodes()
	encryptedCodes, err := e.creds.EncryptRecoveryCodes(codes)
	if err != nil {
		return nil, err
	}

	account.TwoFactorSecret = encryptedSecret
	account.TwoFactorRecoveryCodes = encryptedCodes
	account.TwoFactorEnabled = false
	account.TwoFactorConfirmedAt = nil

	if err = e.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	return &TwoFactorEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		RecoveryCodes:   codes,
	}, nil
}

// Confirm turns the pending enrollment on once the holder proves they can
// produce codes.
func (e *TwoFactorEngine) Confirm(ctx context.Context, account *models.Account, code string, evtCtx EventContext) error {
	if account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return ErrConflict
	}

	secret, err := e.creds.DecryptSecret(account.TwoFactorSecret)
	if err != nil {
		return err
	}
	if !e.validateCode(code, secret) {
		return ErrInvalidCode
	}

	now := time.Now()
	account.TwoFactorEnabled = true
	account.TwoFactorConfirmedAt = &now
	if err = e.accounts.Save(ctx, account); err != nil {
		return err
	}

	e.recorder.Record(ctx, EventTwoFactorEnabled, evtCtx, nil)
	return nil
}

// Disable requires the account password so a hijacked session cannot drop
// the second factor on its own.
func (e *TwoFactorEngine) Disable(ctx context.Context, account *models.Account, password string, evtCtx EventContext) error {
	if !account.TwoFactorEnabled {
		return ErrConflict
	}
	if !e.creds.VerifyPassword(ctx, account.PasswordHash, password) {
		return ErrInvalidCredential
	}

	if err := e.clear(ctx, account); err != nil {
		return err
	}
	e.recorder.Record(ctx, EventTwoFactorDisabled, evtCtx, nil)
	return nil
}

// AdminDisable clears two factor without a password, for operator recovery
// of locked out accounts.
func (e *TwoFactorEngine) AdminDisable(ctx context.Context, account *models.Account, evtCtx EventContext) error {
	if err := e.clear(ctx, account); err != nil {
		return err
	}
	e.recorder.Record(ctx, EventTwoFactorDisabled, evtCtx, frame.JSONMap{"by": "admin"})
	return nil
}

func (e *TwoFactorEngine) clear(ctx context.Context, account *models.Account) error {
	account.TwoFactorEnabled = false
	account.TwoFactorSecret = ""
	account.TwoFactorRecoveryCodes = ""
	account.TwoFactorConfirmedAt = nil
	return e.accounts.Save(ctx, account)
}

// VerifyLoginCode accepts either a live TOTP code or an unused recovery
// code. Recovery codes are single use.
func (e *TwoFactorEngine) VerifyLoginCode(ctx context.Context, account *models.Account, code string, evtCtx EventContext) error {
	if !account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return ErrInvalidCode
	}

	secret, err := e.creds.DecryptSecret(account.TwoFactorSecret)
	if err != nil {
		return err
	}
	if e.validateCode(code, secret) {
		return nil
	}

	return e.consumeRecoveryCode(ctx, account, code, evtCtx)
}

// consumeRecoveryCode spends the matching code via compare and swap on the
// encrypted blob, retrying once if a concurrent consumer moved it first.
func (e *TwoFactorEngine) consumeRecoveryCode(ctx context.Context, account *models.Account, code string, evtCtx EventContext) error {
	for attempt := 0; attempt < 2; attempt++ {
		previous := account.TwoFactorRecoveryCodes
		codes, err := e.creds.DecryptRecoveryCodes(previous)
		if err != nil {
			return err
		}

		remaining := make([]string, 0, len(codes))
		found := false
		for _, c := range codes {
			if !found && c == code {
				found = true
				continue
			}
			remaining = append(remaining, c)
		}
		if !found {
			return ErrInvalidCode
		}

		next, err := e.creds.EncryptRecoveryCodes(remaining)
		if err != nil {
			return err
		}

		swapped, err := e.accounts.SwapRecoveryCodes(ctx, account.ID, previous, next)
		if err != nil {
			return err
		}
		if swapped {
			account.TwoFactorRecoveryCodes = next
			e.recorder.Record(ctx, EventRecoveryCodeUsed, evtCtx,
				frame.JSONMap{"remaining_codes": len(remaining)})
			return nil
		}

		// Lost the race; reload and check whether the code survives.
		fresh, err := e.accounts.GetByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrInvalidCode
		}
		account.TwoFactorRecoveryCodes = fresh.TwoFactorRecoveryCodes
	}
	return ErrInvalidCode
}

// RecoveryCodes lists the unused codes for the holder.
func (e *TwoFactorEngine) RecoveryCodes(ctx context.Context, account *models.Account) ([]string, error) {
	if !account.TwoFactorEnabled || account.TwoFactorRecoveryCodes == "" {
		return nil, ErrNotFound
	}
	return e.creds.DecryptRecoveryCodes(account.TwoFactorRecoveryCodes)
}

// RegenerateRecoveryCodes replaces the whole set, invalidating any unused
// codes. Password re-authentication is required.
func (e *TwoFactorEngine) RegenerateRecoveryCodes(ctx context.Context, account *models.Account, password string, evtCtx EventContext) ([]string, error) {
	if !account.TwoFactorEnabled {
		return nil, ErrConflict
	}
	if !e.creds.VerifyPassword(ctx, account.PasswordHash, password) {
		return nil, ErrInvalidCredential
	}

	codes := e.creds.GenerateRecoveryCodes()
	encrypted, err := e.creds.EncryptRecoveryCodes(codes)
	if err != nil {
		return nil, err
	}

	account.TwoFactorRecoveryCodes = encrypted
	if err = e.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	e.recorder.Record(ctx, EventRecoveryCodesRegenerated, evtCtx, nil)
	return codes, nil
}

func (e *TwoFactorEngine) validateCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriodSeconds,
		Skew:      totpSkewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
