package business_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/service-identity/service/business"
)

func TestTokenIssueAndVerify(t *testing.T) {
	ctx := t.Context()
	store := newTokenStore()
	svc := business.NewTokenService(store, "signing-secret", "service_identity")

	signed, record, err := svc.Issue(ctx, "acc-1", business.CapabilitySession, time.Hour,
		business.TokenMetadata{IPAddress: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.NotEmpty(t, record.ID)

	claims, verified, err := svc.Verify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, business.CapabilitySession, claims.Capability)
	assert.Equal(t, record.ID, claims.ID)
	assert.Equal(t, record.ID, verified.ID)
}

func TestTokenVerifyRejectsGarbage(t *testing.T) {
	ctx := t.Context()
	svc := business.NewTokenService(newTokenStore(), "signing-secret", "service_identity")

	_, _, err := svc.Verify(ctx, "not.a.token")
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
}

func TestTokenVerifyRejectsForeignSignature(t *testing.T) {
	ctx := t.Context()
	store := newTokenStore()
	minting := business.NewTokenService(store, "secret-one", "service_identity")
	verifying := business.NewTokenService(store, "secret-two", "service_identity")

	signed, _, err := minting.Issue(ctx, "acc-1", business.CapabilitySession, time.Hour, business.TokenMetadata{})
	require.NoError(t, err)

	_, _, err = verifying.Verify(ctx, signed)
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
}

func TestTokenVerifyExpired(t *testing.T) {
	ctx := t.Context()
	svc := business.NewTokenService(newTokenStore(), "signing-secret", "service_identity")

	signed, _, err := svc.Issue(ctx, "acc-1", business.CapabilitySession, -time.Minute, business.TokenMetadata{})
	require.NoError(t, err)

	_, _, err = svc.Verify(ctx, signed)
	assert.ErrorIs(t, err, business.ErrExpired)
}

func TestTokenConsumeIsOneShot(t *testing.T) {
	ctx := t.Context()
	svc := business.NewTokenService(newTokenStore(), "signing-secret", "service_identity")

	signed, record, err := svc.Issue(ctx, "acc-1", business.CapabilityTwoFactorChallenge, time.Minute, business.TokenMetadata{})
	require.NoError(t, err)

	won, err := svc.Consume(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = svc.Consume(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, won)

	// A consumed token no longer verifies even though its signature is valid.
	_, _, err = svc.Verify(ctx, signed)
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
}

func TestTokenRevokeAll(t *testing.T) {
	ctx := t.Context()
	store := newTokenStore()
	svc := business.NewTokenService(store, "signing-secret", "service_identity")

	first, _, err := svc.Issue(ctx, "acc-1", business.CapabilitySession, time.Hour, business.TokenMetadata{})
	require.NoError(t, err)
	second, _, err := svc.Issue(ctx, "acc-1", business.CapabilitySession, time.Hour, business.TokenMetadata{})
	require.NoError(t, err)
	other, _, err := svc.Issue(ctx, "acc-2", business.CapabilitySession, time.Hour, business.TokenMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, "acc-1"))

	_, _, err = svc.Verify(ctx, first)
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
	_, _, err = svc.Verify(ctx, second)
	assert.ErrorIs(t, err, business.ErrInvalidCredential)
	_, _, err = svc.Verify(ctx, other)
	assert.NoError(t, err)
}
