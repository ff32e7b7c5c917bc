package services

import (
	"context"
	"testing"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offer(inv uint, round int, amount int64, currency string) models.Offer {
	return models.Offer{RfqSupplierID: inv, Round: round, TotalAmount: decimal.NewFromInt(amount), Currency: currency}
}

func TestComputeStatsRanksAscending(t *testing.T) {
	rfq := &models.Rfq{NegotiationRound: 1}
	offers := []models.Offer{
		offer(1, 1, 100, "TRY"), // A
		offer(2, 1, 80, "USD"),  // B
		offer(3, 1, 90, "TRY"),  // C
	}

	tests := []struct {
		mine     uint
		wantRank int
	}{
		{2, 1},
		{3, 2},
		{1, 3},
	}
	for _, tt := range tests {
		stats := ComputeStats(rfq, 3, offers, tt.mine)
		require.NotNil(t, stats.MyRank)
		assert.Equal(t, tt.wantRank, *stats.MyRank)
		assert.Equal(t, 90.0, stats.MarketAverage)
		assert.True(t, stats.IsMyOfferLatest)
		assert.Equal(t, 80.0, *stats.BestAmount)
		assert.Equal(t, []string{"TRY", "USD"}, stats.Currencies)
	}
}

func TestComputeStatsUsesLatestRoundOnly(t *testing.T) {
	rfq := &models.Rfq{NegotiationRound: 2}
	offers := []models.Offer{
		offer(1, 1, 50, "TRY"),
		offer(1, 2, 70, "TRY"),
		offer(2, 1, 60, "TRY"),
	}
	stats := ComputeStats(rfq, 2, offers, 1)
	require.NotNil(t, stats.MyRank)
	assert.Equal(t, 2, *stats.MyRank)
	assert.Equal(t, 70.0, *stats.MyAmount)
	assert.Equal(t, 65.0, stats.MarketAverage)
	assert.True(t, stats.IsMyOfferLatest)

	stale := ComputeStats(rfq, 2, offers, 2)
	assert.Equal(t, 1, *stale.MyRank)
	assert.False(t, stale.IsMyOfferLatest)
}

func TestComputeStatsWithoutOffers(t *testing.T) {
	stats := ComputeStats(&models.Rfq{}, 4, nil, 1)
	assert.Nil(t, stats.MyRank)
	assert.Nil(t, stats.BestAmount)
	assert.Zero(t, stats.MarketAverage)
	assert.Equal(t, 4, stats.ParticipantCount)
	assert.Empty(t, stats.Currencies)
}

func TestMarketAverageRounding(t *testing.T) {
	avg := MarketAverage([]models.Offer{
		{TotalAmount: decimal.RequireFromString("10.005")},
		{TotalAmount: decimal.RequireFromString("10.010")},
		{TotalAmount: decimal.RequireFromString("10.000")},
	})
	assert.Equal(t, "10.01", avg.StringFixed(2))
}

func TestStatsThroughPortal(t *testing.T) {
	svc, rfq, mine := newPortal(t, models.Rfq{})
	other := invite(t, svc.DB, rfq, seedSupplier(t, svc.DB, "Other", "other@sup.test"))
	ctx := context.Background()

	stats, err := svc.Stats(ctx, mine.Token)
	require.NoError(t, err)
	assert.Nil(t, stats.MyRank)
	assert.Equal(t, 2, stats.ParticipantCount)

	_, err = svc.Submit(ctx, mine.Token, OfferInput{Items: []OfferItemInput{item(1, 100, 0)}})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, other.Token, OfferInput{Items: []OfferItemInput{item(1, 80, 0)}})
	require.NoError(t, err)

	stats, err = svc.Stats(ctx, mine.Token)
	require.NoError(t, err)
	require.NotNil(t, stats.MyRank)
	assert.Equal(t, 2, *stats.MyRank)
	assert.Equal(t, 90.0, stats.MarketAverage)
	assert.Equal(t, 2, stats.OfferCount)
}
