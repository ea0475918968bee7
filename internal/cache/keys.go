package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	AccountKeyPrefix  = "account:%d"
	feedGenerationKey = "feed:gen"
	feedKeyFormat     = "feed:%d:%d:%d:%d"
	wsTicketPrefix    = "ws_ticket:%s"
)

const (
	AccountTTL  = 5 * time.Minute
	FeedTTL     = 30 * time.Second
	WSTicketTTL = 60 * time.Second
)

func AccountKey(accountID uint) string {
	return fmt.Sprintf(AccountKeyPrefix, accountID)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(wsTicketPrefix, ticket)
}

// FeedKey returns the cache key for one feed page of viewer at the current feed generation.
func FeedKey(ctx context.Context, viewerID uint, limit, offset int) string {
	var gen int64
	if client != nil {
		gen, _ = client.Get(ctx, feedGenerationKey).Int64()
	}
	return fmt.Sprintf(feedKeyFormat, gen, viewerID, limit, offset)
}

// InvalidateFeeds bumps the feed generation so every cached page goes stale.
// Feed membership depends on friendships, parent links and moderation state
// across several accounts, so pages are not invalidated individually.
func InvalidateFeeds(ctx context.Context) {
	if client != nil {
		client.Incr(ctx, feedGenerationKey)
	}
}

func InvalidateAccount(ctx context.Context, accountID uint) {
	Invalidate(ctx, AccountKey(accountID))
}
