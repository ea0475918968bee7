package service

import (
	"context"
	"log/slog"
	"time"

	"familynova/internal/observability"
	"familynova/internal/repository"
)

const (
	DefaultRetentionInterval = time.Hour
	friendCodeGrace          = 24 * time.Hour
	profileChangeRetention   = 30 * 24 * time.Hour
	messageRetention         = 180 * 24 * time.Hour
)

// RetentionCounts reports rows removed by one retention pass.
type RetentionCounts struct {
	FriendCodes    int64 `json:"friend_codes"`
	ProfileChanges int64 `json:"profile_changes"`
	Messages       int64 `json:"messages"`
}

// RetentionService periodically removes expired codes, old resolved profile
// changes and old messages.
type RetentionService struct {
	codes    repository.CodeRepository
	changes  repository.ProfileChangeRepository
	messages repository.MessageRepository
	interval time.Duration
	now      func() time.Time
}

func NewRetentionService(
	codes repository.CodeRepository,
	changes repository.ProfileChangeRepository,
	messages repository.MessageRepository,
	interval time.Duration,
) *RetentionService {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	return &RetentionService{
		codes:    codes,
		changes:  changes,
		messages: messages,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs a pass every interval until ctx is cancelled.
func (s *RetentionService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					slog.ErrorContext(ctx, "retention pass failed", "err", err)
				}
			}
		}
	}()
}

// RunOnce performs one retention pass and returns what it deleted.
func (s *RetentionService) RunOnce(ctx context.Context) (RetentionCounts, error) {
	var counts RetentionCounts
	now := s.now()

	n, err := s.codes.DeleteFriendCodesExpiredBefore(ctx, now.Add(-friendCodeGrace))
	if err != nil {
		return counts, err
	}
	counts.FriendCodes = n
	observability.RetentionDeletions.WithLabelValues("friend_codes").Add(float64(n))

	if n, err = s.changes.DeleteResolvedBefore(ctx, now.Add(-profileChangeRetention)); err != nil {
		return counts, err
	}
	counts.ProfileChanges = n
	observability.RetentionDeletions.WithLabelValues("profile_change_requests").Add(float64(n))

	if n, err = s.messages.DeleteOlderThan(ctx, now.Add(-messageRetention)); err != nil {
		return counts, err
	}
	counts.Messages = n
	observability.RetentionDeletions.WithLabelValues("messages").Add(float64(n))

	slog.InfoContext(ctx, "retention pass complete",
		"friend_codes", counts.FriendCodes,
		"profile_changes", counts.ProfileChanges,
		"messages", counts.Messages)
	return counts, nil
}
