package store

import (
	"context"
	"fmt"
	"time"
)

// ProviderUsage aggregates receipts per provider and model
type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Sessions     int     `json:"sessions"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// SessionUsage aggregates receipts of one session
type SessionUsage struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"total_cost"`
}

// UsageSummary is the token and cost report for a time range
type UsageSummary struct {
	TotalSessions     int             `json:"total_sessions"`
	TotalInputTokens  int             `json:"total_input_tokens"`
	TotalOutputTokens int             `json:"total_output_tokens"`
	TotalCost         float64         `json:"total_estimated_cost"`
	ByProvider        []ProviderUsage `json:"by_provider"`
	RecentSessions    []SessionUsage  `json:"recent_sessions"`
}

const recentSessionLimit = 50

// rangeFilter builds a WHERE fragment for column. Zero times are unbounded.
func rangeFilter(column string, from, to time.Time) (string, []any) {
	filter := ""
	var args []any
	if !from.IsZero() {
		filter += " AND " + column + " >= ?"
		args = append(args, from.UTC().Format(timeLayout))
	}
	if !to.IsZero() {
		filter += " AND " + column + " <= ?"
		args = append(args, to.UTC().Format(timeLayout))
	}
	return filter, args
}

// UsageSummary reports totals, a per-provider breakdown and the most recent
// sessions between from and to
func (s *Store) UsageSummary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{
		ByProvider:     []ProviderUsage{},
		RecentSessions: []SessionUsage{},
	}

	err := s.observe(ctx, "usage_summary", func(ctx context.Context) error {
		filter, args := rangeFilter("r.timestamp", from, to)

		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT r.session_id),
				COALESCE(SUM(r.input_tokens), 0),
				COALESCE(SUM(r.output_tokens), 0),
				COALESCE(SUM(r.estimated_cost), 0)
			FROM chat_receipts r WHERE 1=1`+filter, args...).
			Scan(&summary.TotalSessions, &summary.TotalInputTokens, &summary.TotalOutputTokens, &summary.TotalCost)
		if err != nil {
			return fmt.Errorf("totals: %w", err)
		}

		if summary.ByProvider, err = s.providerUsage(ctx, filter, args); err != nil {
			return fmt.Errorf("by provider: %w", err)
		}
		if summary.RecentSessions, err = s.recentSessions(ctx, from, to); err != nil {
			return fmt.Errorf("recent sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build usage summary: %w", err)
	}
	return summary, nil
}

func (s *Store) providerUsage(ctx context.Context, filter string, args []any) ([]ProviderUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.provider, r.model, COUNT(DISTINCT r.session_id),
			SUM(r.input_tokens), SUM(r.output_tokens), SUM(r.estimated_cost) AS cost
		FROM chat_receipts r WHERE 1=1`+filter+`
		GROUP BY r.provider, r.model
		ORDER BY cost DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ProviderUsage{}
	for rows.Next() {
		var pu ProviderUsage
		if err := rows.Scan(&pu.Provider, &pu.Model, &pu.Sessions, &pu.InputTokens, &pu.OutputTokens, &pu.Cost); err != nil {
			return nil, err
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}

func (s *Store) recentSessions(ctx context.Context, from, to time.Time) ([]SessionUsage, error) {
	filter, args := rangeFilter("s.created_at", from, to)
	args = append(args, recentSessionLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.topic, s.provider, s.model, s.status, s.created_at,
			COALESCE(SUM(r.input_tokens), 0),
			COALESCE(SUM(r.output_tokens), 0),
			COALESCE(SUM(r.estimated_cost), 0)
		FROM sessions s
		LEFT JOIN chat_receipts r ON r.session_id = s.id
		WHERE 1=1`+filter+`
		GROUP BY s.id
		ORDER BY s.created_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionUsage{}
	for rows.Next() {
		var (
			su      SessionUsage
			created string
		)
		if err := rows.Scan(&su.ID, &su.Topic, &su.Provider, &su.Model, &su.Status, &created,
			&su.InputTokens, &su.OutputTokens, &su.Cost); err != nil {
			return nil, err
		}
		su.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, su)
	}
	return out, rows.Err()
}
