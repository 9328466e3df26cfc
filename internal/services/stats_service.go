package services

import (
	"context"
	"database/sql"
)

// PlatformStats are the read-only aggregates used to sanity-check the
// registry and ledger against each other.
type PlatformStats struct {
	TotalCodes      int `json:"totalCodes"`
	UsedCodes       int `json:"usedCodes"`
	UnusedCodes     int `json:"unusedCodes"`
	TotalScans      int `json:"totalScans"`
	TotalAccounts   int `json:"totalAccounts"`
	ActiveAccounts  int `json:"activeAccounts"`
	PointsRedeemed  int `json:"pointsRedeemed"`
	LedgerNetPoints int `json:"ledgerNetPoints"`
}

// StatsService serves operator-facing aggregate queries. Read-only.
type StatsService struct {
	db *sql.DB
}

func NewStatsService(db *sql.DB) *StatsService {
	return &StatsService{db: db}
}

func (s *StatsService) Overview(ctx context.Context) (*PlatformStats, error) {
	var stats PlatformStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM codes),
			(SELECT COUNT(*) FROM codes WHERE is_used),
			(SELECT COUNT(*) FROM codes WHERE NOT is_used),
			(SELECT COALESCE(SUM(scanned_count), 0) FROM codes),
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM accounts WHERE is_active),
			(SELECT COALESCE(SUM(points_earned), 0) FROM redemptions),
			(SELECT COALESCE(SUM(CASE WHEN kind IN ('earned', 'bonus') THEN amount ELSE -amount END), 0) FROM ledger_entries)`,
	).Scan(&stats.TotalCodes, &stats.UsedCodes, &stats.UnusedCodes, &stats.TotalScans,
		&stats.TotalAccounts, &stats.ActiveAccounts, &stats.PointsRedeemed, &stats.LedgerNetPoints)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
