// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ModerationDecisions counts moderation outcomes by entity and decision.
	// decision is one of approved, rejected, auto_approved, already_resolved, forbidden.
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_moderation_decisions_total",
		Help: "Moderation outcomes by entity type and decision",
	}, []string{"entity", "decision"})

	// FriendCodeRedemptions counts friend-code redemption attempts by result.
	FriendCodeRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_friend_code_redemptions_total",
		Help: "Friend code redemption attempts by result",
	}, []string{"result"})

	// LikeToggles counts like toggles by resulting state.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_like_toggles_total",
		Help: "Like toggles by resulting state",
	}, []string{"state"})

	// ReactionToggles counts reaction toggles by type and action (added, removed).
	ReactionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_reaction_toggles_total",
		Help: "Reaction toggles by reaction type and action",
	}, []string{"type", "action"})

	// FeedCacheLookups counts feed cache hits and misses.
	FeedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_feed_cache_lookups_total",
		Help: "Feed cache lookups by result",
	}, []string{"result"})

	// WebSocketConnectionsTotal is the gauge of active realtime connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "familynova_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// RetentionDeletions counts rows removed by the retention worker per table.
	RetentionDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familynova_retention_deleted_rows_total",
		Help: "Rows deleted by the data retention worker",
	}, []string{"table"})
)
