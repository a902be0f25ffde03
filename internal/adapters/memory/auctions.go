package memory

import (
	"context"
	"sort"
	"time"

	"tg-collector-bot/internal/domain"
)

// CreateAuction реализует domain.AuctionRepo.
func (s *Store) CreateAuction(ctx context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	stored := a
	s.auctions[a.ID] = &stored
	return nil
}

// GetAuction реализует domain.AuctionRepo.
func (s *Store) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return *a, nil
}

// ListOngoingAuctions реализует domain.AuctionRepo.
func (s *Store) ListOngoingAuctions(ctx context.Context) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionOngoing {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

// SetAuctionMessage реализует domain.AuctionRepo.
func (s *Store) SetAuctionMessage(ctx context.Context, id string, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.MessageID = messageID
	return nil
}

// CompareAndSetBid реализует domain.AuctionRepo.
func (s *Store) CompareAndSetBid(ctx context.Context, id string, expected, bid, bidder int64, bidderName string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.Status != domain.AuctionOngoing || !now.Before(a.EndTime) || a.HighestBid != expected {
		return false, nil
	}
	a.HighestBid = bid
	a.HighestBidder = bidder
	a.HighestBidderName = bidderName
	return true, nil
}

// CloseAuction реализует domain.AuctionRepo.
func (s *Store) CloseAuction(ctx context.Context, id string, now time.Time) (domain.Auction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, false, domain.ErrNotFound
	}
	if a.Status != domain.AuctionOngoing {
		return *a, false, nil
	}
	a.Status = domain.AuctionEnded
	if a.HasBids() {
		rec := s.profile(a.HighestBidder, "")
		debit := domain.Balances{Crystals: a.HighestBid}
		if rec.profile.Balances.Covers(debit) {
			rec.profile.Balances = rec.profile.Balances.Sub(debit)
			rec.owned = append(rec.owned, ownedRecord{characterID: a.Character.ID, acquiredAt: now, source: domain.SourceAuction})
			a.Settled = true
		}
	}
	return *a, true, nil
}
