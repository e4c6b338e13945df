package cachework

import (
	"context"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const SourceWorker = "cache-worker"

// CacheStore evicts read-side cache entries. Best effort: a missed eviction
// self-heals when the entry's TTL expires.
type CacheStore interface {
	Invalidate(ctx context.Context, keys ...string) error
}

type redisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) CacheStore {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Service evicts stale read-side entries on every pipeline event. Its
// failures never fail the pipeline; it logs and moves on.
type Service struct {
	cache CacheStore
}

type ServiceParams struct {
	fx.In
	Cache CacheStore
}

func NewService(p ServiceParams) *Service {
	return &Service{cache: p.Cache}
}

func (s *Service) HandleEvent(ctx context.Context, env event.Envelope) error {
	studentID, courseID, err := subjectOf(env)
	if err != nil {
		// Redelivery cannot repair a malformed payload, and eviction is
		// best effort; dropping it costs one TTL window at worst.
		zap.L().Warn("unreadable event payload, skipping eviction",
			zap.String("event_type", string(env.Type)),
			zap.String("correlation_id", env.CorrelationID),
			zap.Error(err),
		)
		return nil
	}
	if studentID == "" {
		zap.L().Warn("event without student subject, nothing to evict",
			zap.String("event_type", string(env.Type)),
			zap.String("correlation_id", env.CorrelationID),
		)
		return nil
	}

	keys := []string{rediskey.BuildStudentKey(studentID)}
	if courseID != "" {
		keys = append(keys, rediskey.BuildStudentCourseKey(studentID, courseID))
	}

	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		zap.L().Warn("cache invalidation failed, entry will expire by TTL",
			zap.String("event_type", string(env.Type)),
			zap.String("correlation_id", env.CorrelationID),
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}

	return nil
}

func subjectOf(env event.Envelope) (studentID, courseID string, err error) {
	switch env.Type {
	case event.TypePaymentConfirmed:
		p, derr := event.DecodePayload[event.PaymentConfirmed](env)
		return p.StudentID, p.CourseID, derr
	case event.TypePurchaseCreated:
		p, derr := event.DecodePayload[event.PurchaseCreated](env)
		return p.StudentID, p.CourseID, derr
	case event.TypeResourceAllocated:
		p, derr := event.DecodePayload[event.ResourceAllocated](env)
		return p.StudentID, p.CourseID, derr
	case event.TypeSessionsGenerated:
		p, derr := event.DecodePayload[event.SessionsGenerated](env)
		return p.StudentID, p.CourseID, derr
	default:
		return "", "", nil
	}
}
