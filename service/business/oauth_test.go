package business_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/service-identity/service/business"
	"github.com/wardenhq/service-identity/service/models"
)

func newReconciler(t *testing.T, fx *fixtures) *business.OAuthReconciler {
	t.Helper()
	recorder := business.NewSecurityEventRecorder(fx.events, nil)
	require.NoError(t, fx.roles.Save(t.Context(), &models.Role{Name: "user", System: true}))
	return business.NewOAuthReconciler(fx.accounts, fx.identities, fx.roles, recorder, "user")
}

func githubAssertion(subject, email string) business.ProviderAssertion {
	return business.ProviderAssertion{
		SubjectID: subject,
		Email:     email,
		Name:      "Test Holder",
		Username:  "holder",
	}
}

func TestReconcileProvisionsNewAccount(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	result, err := reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", "holder@example.com"), business.EventContext{})
	require.NoError(t, err)
	assert.True(t, result.IsNewAccount)
	assert.True(t, result.IsNewLink)
	assert.Equal(t, "holder@example.com", result.Account.Email)
	assert.Equal(t, "holder", result.Account.Username)
	assert.True(t, result.Account.Active)
	// The provider vouched for the address.
	assert.NotNil(t, result.Account.EmailVerifiedAt)
	assert.False(t, result.Account.HasPassword())

	roles, err := fx.access.Roles(ctx, result.Account.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "user", roles[0].Name)

	assert.Len(t, fx.events.byType(business.EventAccountCreated), 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()
	assertion := githubAssertion("gh-1", "holder@example.com")

	first, err := reconciler.Reconcile(ctx, "github", assertion, business.EventContext{})
	require.NoError(t, err)

	second, err := reconciler.Reconcile(ctx, "github", assertion, business.EventContext{})
	require.NoError(t, err)
	assert.False(t, second.IsNewAccount)
	assert.False(t, second.IsNewLink)
	assert.Equal(t, first.Account.ID, second.Account.ID)

	count, err := fx.identities.CountByAccount(ctx, first.Account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestReconcileAttachesByEmail(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	existing := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, existing))

	result, err := reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", "holder@example.com"), business.EventContext{})
	require.NoError(t, err)
	assert.False(t, result.IsNewAccount)
	assert.True(t, result.IsNewLink)
	assert.Equal(t, existing.ID, result.Account.ID)

	assert.Len(t, fx.events.byType(business.EventOAuthAccountLinked), 1)
}

func TestReconcileWithoutEmailOrSubject(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	_, err := reconciler.Reconcile(ctx, "github", githubAssertion("", "holder@example.com"), business.EventContext{})
	assert.ErrorIs(t, err, business.ErrInvalidCredential)

	_, err = reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", ""), business.EventContext{})
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
}

func TestUsernameCollisionSuffix(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	require.NoError(t, fx.accounts.Save(ctx, &models.Account{
		Email: "first@example.com", Username: "holder", Active: true,
	}))

	result, err := reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", "second@example.com"), business.EventContext{})
	require.NoError(t, err)
	assert.Equal(t, "holder1", result.Account.Username)

	assertion := githubAssertion("gh-2", "third@example.com")
	result, err = reconciler.Reconcile(ctx, "gitlab", assertion, business.EventContext{})
	require.NoError(t, err)
	assert.Equal(t, "holder2", result.Account.Username)
}

func TestLinkRejectsForeignSubject(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	first, err := reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", "first@example.com"), business.EventContext{})
	require.NoError(t, err)

	second := &models.Account{Email: "second@example.com", Username: "second", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, second))

	_, err = reconciler.Link(ctx, second, "github", githubAssertion("gh-1", "first@example.com"),
		business.EventContext{AccountID: second.ID})
	assert.ErrorIs(t, err, business.ErrAlreadyLinkedElsewhere)

	// The original holder relinking the same subject is a no-op, not an error.
	_, err = reconciler.Link(ctx, first.Account, "github", githubAssertion("gh-1", "first@example.com"),
		business.EventContext{AccountID: first.Account.ID})
	assert.NoError(t, err)
}

func TestLinkOnePerProvider(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))

	_, err := reconciler.Link(ctx, account, "github", githubAssertion("gh-1", "holder@example.com"),
		business.EventContext{AccountID: account.ID})
	require.NoError(t, err)

	_, err = reconciler.Link(ctx, account, "github", githubAssertion("gh-2", "holder@example.com"),
		business.EventContext{AccountID: account.ID})
	assert.ErrorIs(t, err, business.ErrConflict)
}

func TestUnlinkGuardsLastAuthMethod(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	// Provisioned via the provider, so no password exists.
	result, err := reconciler.Reconcile(ctx, "github", githubAssertion("gh-1", "holder@example.com"), business.EventContext{})
	require.NoError(t, err)
	account := result.Account

	err = reconciler.Unlink(ctx, account, "github", business.EventContext{AccountID: account.ID})
	assert.ErrorIs(t, err, business.ErrLastAuthMethod)

	// A second provider makes the first removable.
	_, err = reconciler.Link(ctx, account, "gitlab", githubAssertion("gl-1", "holder@example.com"),
		business.EventContext{AccountID: account.ID})
	require.NoError(t, err)

	err = reconciler.Unlink(ctx, account, "github", business.EventContext{AccountID: account.ID})
	assert.NoError(t, err)

	linked, err := reconciler.Linked(ctx, account)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "gitlab", linked[0].Provider)
}

func TestUnlinkWithPasswordAlwaysAllowed(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	account := &models.Account{
		Email: "holder@example.com", Username: "holder", Active: true,
		PasswordHash: []byte("not-a-real-hash-but-present"),
	}
	require.NoError(t, fx.accounts.Save(ctx, account))

	_, err := reconciler.Link(ctx, account, "github", githubAssertion("gh-1", "holder@example.com"),
		business.EventContext{AccountID: account.ID})
	require.NoError(t, err)

	err = reconciler.Unlink(ctx, account, "github", business.EventContext{AccountID: account.ID})
	assert.NoError(t, err)
}

func TestUnlinkMissingProvider(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))

	err := reconciler.Unlink(ctx, account, "github", business.EventContext{AccountID: account.ID})
	assert.ErrorIs(t, err, business.ErrNotFound)
}

func TestDeriveUsernameFallbacks(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	// No username: the display name is dotted.
	result, err := reconciler.Reconcile(ctx, "github", business.ProviderAssertion{
		SubjectID: "gh-1", Email: "a@example.com", Name: "Ada Lovelace",
	}, business.EventContext{})
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace", result.Account.Username)

	// No username or name: the email local part is used.
	result, err = reconciler.Reconcile(ctx, "github", business.ProviderAssertion{
		SubjectID: "gh-2", Email: "grace.hopper@example.com",
	}, business.EventContext{})
	require.NoError(t, err)
	assert.Equal(t, "grace.hopper", result.Account.Username)
}

func TestManyCollisionsKeepCounting(t *testing.T) {
	fx := newFixtures()
	reconciler := newReconciler(t, fx)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		assertion := githubAssertion(fmt.Sprintf("gh-%d", i), fmt.Sprintf("holder%d@example.com", i))
		result, err := reconciler.Reconcile(ctx, "github", assertion, business.EventContext{})
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, "holder", result.Account.Username)
		} else {
			assert.Equal(t, fmt.Sprintf("holder%d", i), result.Account.Username)
		}
	}
}
