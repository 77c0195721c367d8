package business

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
)

// ProviderAssertion is the verified identity payload handed over by a
// provider integration after it has validated the upstream exchange.
type ProviderAssertion struct {
	SubjectID string
	Email     string
	Name      string
	Username  string
	AvatarURL string
	Raw       frame.JSONMap
}

// ReconcileResult reports which branch the reconciliation took.
type ReconcileResult struct {
	Account      *models.Account
	IsNewAccount bool
	IsNewLink    bool
}

// OAuthReconciler maps provider identities onto local accounts.
type OAuthReconciler struct {
	accounts   repository.AccountRepository
	identities repository.ExternalIdentityRepository
	roles      repository.RoleRepository
	recorder   *SecurityEventRecorder
	defaultRole string
}

func NewOAuthReconciler(accounts repository.AccountRepository, identities repository.ExternalIdentityRepository, roles repository.RoleRepository, recorder *SecurityEventRecorder, defaultRole string) *OAuthReconciler {
	return &OAuthReconciler{
		accounts:    accounts,
		identities:  identities,
		roles:       roles,
		recorder:    recorder,
		defaultRole: defaultRole,
	}
}

// Reconcile resolves a provider assertion to an account: reuse an existing
// link, attach to an account matching the asserted email, or provision a
// fresh account. Reconciling the same assertion twice is idempotent.
func (r *OAuthReconciler) Reconcile(ctx context.Context, provider string, assertion ProviderAssertion, evtCtx EventContext) (*ReconcileResult, error) {
	if provider == "" || assertion.SubjectID == "" {
		return nil, ErrInvalidCredential
	}

	link, err := r.identities.GetByProviderSubject(ctx, provider, assertion.SubjectID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		account, err := r.accounts.GetByID(ctx, link.AccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrNotFound
		}

		r.refreshLink(link, assertion)
		if err = r.identities.Save(ctx, link); err != nil {
			return nil, err
		}
		return &ReconcileResult{Account: account}, nil
	}

	if assertion.Email != "" {
		account, err := r.accounts.GetByEmail(ctx, strings.ToLower(assertion.Email))
		if err != nil {
			return nil, err
		}
		if account != nil {
			link = r.buildLink(account.ID, provider, assertion)
			if err = r.identities.Save(ctx, link); err != nil {
				return nil, err
			}

			r.recorder.Record(ctx, EventOAuthAccountLinked,
				EventContext{AccountID: account.ID, IPAddress: evtCtx.IPAddress, UserAgent: evtCtx.UserAgent},
				frame.JSONMap{"provider": provider})
			return &ReconcileResult{Account: account, IsNewLink: true}, nil
		}
	}

	return r.provision(ctx, provider, assertion, evtCtx)
}

// provision creates the account, link and default role in one transaction.
func (r *OAuthReconciler) provision(ctx context.Context, provider string, assertion ProviderAssertion, evtCtx EventContext) (*ReconcileResult, error) {
	if assertion.Email == "" {
		// Without an email there is nothing to anchor the new account to.
		return nil, ErrInvalidCredential
	}

	username, err := r.deriveUsername(ctx, assertion)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &models.Account{
		Email:     strings.ToLower(assertion.Email),
		Username:  username,
		Name:      assertion.Name,
		AvatarURL: assertion.AvatarURL,
		Active:    true,
		// The provider already verified this address.
		EmailVerifiedAt: &now,
	}

	defaultRoleID := ""
	if r.defaultRole != "" {
		role, err := r.roles.GetByName(ctx, r.defaultRole)
		if err != nil {
			return nil, err
		}
		if role != nil {
			defaultRoleID = role.ID
		}
	}

	link := r.buildLink("", provider, assertion)
	if err = r.identities.CreateAccountWithLink(ctx, account, link, defaultRoleID); err != nil {
		return nil, err
	}

	r.recorder.Record(ctx, EventAccountCreated,
		EventContext{AccountID: account.ID, IPAddress: evtCtx.IPAddress, UserAgent: evtCtx.UserAgent},
		frame.JSONMap{"provider": provider})

	return &ReconcileResult{Account: account, IsNewAccount: true, IsNewLink: true}, nil
}

// Link attaches a provider identity to an already authenticated account.
func (r *OAuthReconciler) Link(ctx context.Context, account *models.Account, provider string, assertion ProviderAssertion, evtCtx EventContext) (*models.ExternalIdentity, error) {
	if provider == "" || assertion.SubjectID == "" {
		return nil, ErrInvalidCredential
	}

	existing, err := r.identities.GetByProviderSubject(ctx, provider, assertion.SubjectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.AccountID != account.ID {
			return nil, ErrAlreadyLinkedElsewhere
		}
		r.refreshLink(existing, assertion)
		if err = r.identities.Save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	held, err := r.identities.GetByAccountProvider(ctx, account.ID, provider)
	if err != nil {
		return nil, err
	}
	if held != nil {
		// One identity per provider per account
		return nil, ErrConflict
	}

	link := r.buildLink(account.ID, provider, assertion)
	if err = r.identities.Save(ctx, link); err != nil {
		return nil, err
	}

	r.recorder.Record(ctx, EventOAuthAccountLinked, evtCtx, frame.JSONMap{"provider": provider})
	return link, nil
}

// Unlink detaches a provider. Refused when it would leave the account with
// no way to sign in.
func (r *OAuthReconciler) Unlink(ctx context.Context, account *models.Account, provider string, evtCtx EventContext) error {
	link, err := r.identities.GetByAccountProvider(ctx, account.ID, provider)
	if err != nil {
		return err
	}
	if link == nil {
		return ErrNotFound
	}

	if !account.HasPassword() {
		count, err := r.identities.CountByAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAuthMethod
		}
	}

	if err = r.identities.Delete(ctx, account.ID, provider); err != nil {
		return err
	}

	r.recorder.Record(ctx, EventOAuthAccountUnlinked, evtCtx, frame.JSONMap{"provider": provider})
	return nil
}

func (r *OAuthReconciler) Linked(ctx context.Context, account *models.Account) ([]*models.ExternalIdentity, error) {
	return r.identities.ListByAccount(ctx, account.ID)
}

func (r *OAuthReconciler) buildLink(accountID, provider string, assertion ProviderAssertion) *models.ExternalIdentity {
	now := time.Now()
	return &models.ExternalIdentity{
		AccountID:  accountID,
		Provider:   provider,
		SubjectID:  assertion.SubjectID,
		Email:      strings.ToLower(assertion.Email),
		Name:       assertion.Name,
		AvatarURL:  assertion.AvatarURL,
		Raw:        assertion.Raw,
		LastUsedAt: &now,
	}
}

func (r *OAuthReconciler) refreshLink(link *models.ExternalIdentity, assertion ProviderAssertion) {
	now := time.Now()
	link.Email = strings.ToLower(assertion.Email)
	link.Name = assertion.Name
	link.AvatarURL = assertion.AvatarURL
	link.Raw = assertion.Raw
	link.LastUsedAt = &now
}

// deriveUsername builds a unique username from the assertion, suffixing a
// counter on collision.
func (r *OAuthReconciler) deriveUsername(ctx context.Context, assertion ProviderAssertion) (string, error) {
	base := strings.ToLower(strings.TrimSpace(assertion.Username))
	if base == "" {
		base = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(assertion.Name), " ", "."))
	}
	if base == "" {
		base = strings.ToLower(strings.SplitN(assertion.Email, "@", 2)[0])
	}

	candidate := base
	for counter := 1; ; counter++ {
		exists, err := r.accounts.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, counter)
	}
}
