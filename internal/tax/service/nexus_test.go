package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/clock"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestNexusResolver(repo taxdomain.Repository) taxdomain.NexusResolver {
	return NewNexusResolver(NexusParams{
		Log:   zap.NewNop(),
		Repo:  repo,
		Clock: clock.NewFakeClock(testNow),
	})
}

func TestDetermineNexus_USWithRegisteredState(t *testing.T) {
	repo := new(mockRepository)
	tenant := snowflake.ID(42)
	repo.On("ListEffectiveNexusCodes", mock.Anything, tenant, clock.StartOfDay(testNow)).
		Return([]string{"US-CA", "US", "US-NY"}, nil)

	res, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Origin:      taxdomain.Address{Country: "US", State: "NY"},
		Destination: taxdomain.Address{Country: " us ", State: "ca"},
		TenantID:    tenant,
	})

	require.NoError(t, err)
	assert.True(t, res.HasNexus)
	assert.Equal(t, []string{"US", "US-CA"}, res.Jurisdictions)
	repo.AssertExpectations(t)
}

func TestDetermineNexus_NonNexusCountryIgnoresOrigin(t *testing.T) {
	repo := new(mockRepository)
	repo.On("ListEffectiveNexusCodes", mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"US", "US-CA", "GB"}, nil)

	res, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Origin:      taxdomain.Address{Country: "US", State: "CA"},
		Destination: taxdomain.Address{Country: "FR", State: "IDF"},
		TenantID:    7,
	})

	require.NoError(t, err)
	assert.False(t, res.HasNexus)
	assert.NotNil(t, res.Jurisdictions)
	assert.Empty(t, res.Jurisdictions)
}

func TestDetermineNexus_StateIgnoredOutsideUS(t *testing.T) {
	repo := new(mockRepository)
	repo.On("ListEffectiveNexusCodes", mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"CA", "CA-ON"}, nil)

	res, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "CA", State: "ON"},
		TenantID:    7,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"CA"}, res.Jurisdictions)
}

func TestDetermineNexus_EmptyCountrySkipsStore(t *testing.T) {
	repo := new(mockRepository)

	res, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "  ", State: "CA"},
		TenantID:    7,
	})

	require.NoError(t, err)
	assert.False(t, res.HasNexus)
	assert.Equal(t, []string{}, res.Jurisdictions)
	repo.AssertNotCalled(t, "ListEffectiveNexusCodes", mock.Anything, mock.Anything, mock.Anything)
}

func TestDetermineNexus_StoreErrorFailsOpen(t *testing.T) {
	repo := new(mockRepository)
	repo.On("ListEffectiveNexusCodes", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	res, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "US", State: "CA"},
		TenantID:    7,
	})

	require.NoError(t, err)
	assert.False(t, res.HasNexus)
	assert.Equal(t, []string{}, res.Jurisdictions)
}

func TestDetermineNexus_RequiresTenant(t *testing.T) {
	repo := new(mockRepository)

	_, err := newTestNexusResolver(repo).DetermineNexus(context.Background(), taxdomain.NexusRequest{
		Destination: taxdomain.Address{Country: "US"},
	})

	assert.ErrorIs(t, err, taxdomain.ErrInvalidTenant)
}

func TestCandidateJurisdictions(t *testing.T) {
	assert.Equal(t, []string{"US"}, CandidateJurisdictions(taxdomain.Address{Country: "US"}))
	assert.Equal(t, []string{"US", "US-TX"}, CandidateJurisdictions(taxdomain.Address{Country: "us", State: " tx "}))
	assert.Equal(t, []string{"GB"}, CandidateJurisdictions(taxdomain.Address{Country: "GB", State: "LND"}))
	assert.Equal(t, []string{}, CandidateJurisdictions(taxdomain.Address{}))
}
