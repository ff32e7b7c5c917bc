package services

import (
	"context"
	"sort"
	"time"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/shopspring/decimal"
)

// NegotiationStats is the anonymous market position shown to one supplier.
// Amounts are compared as raw numbers whatever their currency; Currencies
// lists what was actually offered so a mixed set can be spotted.
type NegotiationStats struct {
	Round               int        `json:"round"`
	NegotiationStatus   string     `json:"negotiationStatus"`
	NegotiationDeadline *time.Time `json:"negotiationDeadline"`
	MyRank              *int       `json:"myRank"`
	MyAmount            *float64   `json:"myAmount"`
	MyRound             *int       `json:"myRound"`
	IsMyOfferLatest     bool       `json:"isMyOfferLatest"`
	MarketAverage       float64    `json:"marketAverage"`
	BestAmount          *float64   `json:"bestAmount"`
	OfferCount          int        `json:"offerCount"`
	ParticipantCount    int        `json:"participantCount"`
	Currencies          []string   `json:"currencies"`
}

// LatestOffers keeps, per invitation, only the offer with the highest round.
func LatestOffers(offers []models.Offer) []models.Offer {
	latest := make(map[uint]models.Offer, len(offers))
	for _, o := range offers {
		if cur, ok := latest[o.RfqSupplierID]; !ok || o.Round > cur.Round {
			latest[o.RfqSupplierID] = o
		}
	}
	out := make([]models.Offer, 0, len(latest))
	for _, o := range latest {
		out = append(out, o)
	}
	return out
}

// RankOffers sorts offers by amount ascending. Ties keep invitation order.
func RankOffers(offers []models.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		if c := offers[i].TotalAmount.Cmp(offers[j].TotalAmount); c != 0 {
			return c < 0
		}
		return offers[i].RfqSupplierID < offers[j].RfqSupplierID
	})
}

// MarketAverage is the mean amount rounded to 2 decimals, 0 without offers.
func MarketAverage(offers []models.Offer) decimal.Decimal {
	if len(offers) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, o := range offers {
		sum = sum.Add(o.TotalAmount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(offers)))).Round(2)
}

// ComputeStats ranks the latest offer of every participant from the point of
// view of invitation mine.
func ComputeStats(rfq *models.Rfq, participants int, offers []models.Offer, mine uint) NegotiationStats {
	latest := LatestOffers(offers)
	RankOffers(latest)

	stats := NegotiationStats{
		Round:               rfq.NegotiationRound,
		NegotiationStatus:   rfq.NegotiationStatus,
		NegotiationDeadline: rfq.NegotiationDeadline,
		MarketAverage:       MarketAverage(latest).InexactFloat64(),
		OfferCount:          len(latest),
		ParticipantCount:    participants,
		Currencies:          []string{},
	}
	seen := map[string]bool{}
	for i, o := range latest {
		if !seen[o.Currency] {
			seen[o.Currency] = true
			stats.Currencies = append(stats.Currencies, o.Currency)
		}
		if o.RfqSupplierID != mine {
			continue
		}
		rank, amount, round := i+1, o.TotalAmount.Round(2).InexactFloat64(), o.Round
		stats.MyRank, stats.MyAmount, stats.MyRound = &rank, &amount, &round
		stats.IsMyOfferLatest = o.Round == rfq.NegotiationRound
	}
	sort.Strings(stats.Currencies)
	if len(latest) > 0 {
		best := latest[0].TotalAmount.Round(2).InexactFloat64()
		stats.BestAmount = &best
	}
	return stats
}

// Stats returns the negotiation statistics for the supplier holding token.
func (s *OfferService) Stats(ctx context.Context, token string) (*NegotiationStats, error) {
	inv, err := s.Invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&models.RfqSupplier{}).
		Where("rfq_id = ?", inv.RfqID).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	var offers []models.Offer
	if len(ids) > 0 {
		if err := s.DB.WithContext(ctx).Where("rfq_supplier_id IN ?", ids).Find(&offers).Error; err != nil {
			return nil, err
		}
	}
	stats := ComputeStats(inv.Rfq, len(ids), offers, inv.ID)
	return &stats, nil
}
