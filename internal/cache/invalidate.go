package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Invalidation entity labels.
const (
	EntityBusiness    = "business"
	EntityService     = "service"
	EntityAppointment = "appointment"
	EntityUser        = "user"
	EntityAll         = "all"
)

// InvalidateBusiness drops everything cached about a business: its own entries, entries scoped
// to it, and its service, appointment, stats and monitor listings.
func (s *Service) InvalidateBusiness(ctx context.Context, businessID string) Result {
	id, ok := s.invalidationID(EntityBusiness, businessID)
	if !ok {
		return s.rejectInvalidation(EntityBusiness, businessID)
	}
	return s.invalidate(ctx, EntityBusiness, id, []string{
		versioned("business:*%s*", id),
		versioned("businesses:*"),
		versioned("*:biz:%s:*", id),
		versioned("services:*%s*", id),
		versioned("appointments:*%s*", id),
		versioned("stats:*%s*", id),
		versioned("monitor:*%s*", id),
	})
}

// InvalidateService drops a service's entries and, when businessID is set, the owning
// business's service listings and business entries.
func (s *Service) InvalidateService(ctx context.Context, serviceID, businessID string) Result {
	id, ok := s.invalidationID(EntityService, serviceID)
	if !ok {
		return s.rejectInvalidation(EntityService, serviceID)
	}
	patterns := []string{versioned("service:*%s*", id)}
	if strings.TrimSpace(businessID) != "" {
		biz, ok := s.invalidationID(EntityBusiness, businessID)
		if !ok {
			return s.rejectInvalidation(EntityBusiness, businessID)
		}
		patterns = append(patterns,
			versioned("services:*biz:%s:*", biz),
			versioned("business:*%s*", biz),
		)
	}
	return s.invalidate(ctx, EntityService, id, patterns)
}

// InvalidateAppointment drops an appointment's entries and, when businessID is set, the
// business's appointment listings, stats and monitor entries.
func (s *Service) InvalidateAppointment(ctx context.Context, appointmentID, businessID string) Result {
	id, ok := s.invalidationID(EntityAppointment, appointmentID)
	if !ok {
		return s.rejectInvalidation(EntityAppointment, appointmentID)
	}
	patterns := []string{versioned("appointment:*%s*", id)}
	if strings.TrimSpace(businessID) != "" {
		biz, ok := s.invalidationID(EntityBusiness, businessID)
		if !ok {
			return s.rejectInvalidation(EntityBusiness, businessID)
		}
		patterns = append(patterns,
			versioned("appointments:*biz:%s:*", biz),
			versioned("stats:*biz:%s:*", biz),
			versioned("monitor:*biz:%s:*", biz),
		)
	}
	return s.invalidate(ctx, EntityAppointment, id, patterns)
}

// InvalidateUser drops user-scoped entries and the user's profile.
func (s *Service) InvalidateUser(ctx context.Context, userID string) Result {
	id, ok := s.invalidationID(EntityUser, userID)
	if !ok {
		return s.rejectInvalidation(EntityUser, userID)
	}
	return s.invalidate(ctx, EntityUser, id, []string{
		versioned("*:user:%s:*", id),
		versioned("profile:*%s*", id),
	})
}

// ErrUnknownEntity is returned by InvalidateEntity for an unsupported entity label.
var ErrUnknownEntity = errors.New("cache: unknown invalidation entity")

// InvalidateEntity dispatches to the invalidator for entity. businessID is only used for
// services and appointments.
func (s *Service) InvalidateEntity(ctx context.Context, entity, id, businessID string) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(entity)) {
	case EntityBusiness:
		return s.InvalidateBusiness(ctx, id), nil
	case EntityService:
		return s.InvalidateService(ctx, id, businessID), nil
	case EntityAppointment:
		return s.InvalidateAppointment(ctx, id, businessID), nil
	case EntityUser:
		return s.InvalidateUser(ctx, id), nil
	case EntityAll:
		return s.ClearAll(ctx), nil
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
}

// ClearAll removes every key of the current key version.
func (s *Service) ClearAll(ctx context.Context) Result {
	s.log.Warn("clearing all cache entries", zap.String("version", KeyVersion))
	return s.invalidate(ctx, EntityAll, "*", []string{KeyVersion + ":*"})
}

func (s *Service) invalidate(ctx context.Context, entity, id string, patterns []string) Result {
	ctx = ensureContext(ctx)
	ctx, span := s.tracer.Start(ctx, "cache.Invalidate", trace.WithAttributes(
		attribute.String("cache.entity", entity),
		attribute.String("cache.entity_id", id),
		attribute.Int("cache.patterns", len(patterns)),
	))
	defer span.End()
	defer s.metrics.observe("invalidate", time.Now())

	var (
		total int64
		errs  error
	)
	for _, pattern := range patterns {
		res := s.DeletePattern(ctx, pattern)
		total += res.Deleted
		errs = multierr.Append(errs, res.Err)
	}

	s.metrics.invalidation(entity, total)
	span.SetAttributes(attribute.Int64("cache.deleted", total))
	if errs != nil {
		span.RecordError(errs)
		s.log.Warn("cache invalidation incomplete",
			zap.String("entity", entity),
			zap.String("entity_id", id),
			zap.Int64("deleted", total),
			zap.Error(errs),
		)
	} else {
		s.log.Info("cache invalidated",
			zap.String("entity", entity),
			zap.String("entity_id", id),
			zap.Int64("deleted", total),
		)
	}
	return Result{Deleted: total, Err: errs}
}

func (s *Service) invalidationID(entity, raw string) (string, bool) {
	id, ok := SanitizeComponent(raw, maxComponentLength)
	if !ok {
		s.log.Warn("rejected invalidation id", zap.String("entity", entity), zap.Int("length", len(raw)))
	}
	return id, ok
}

func (s *Service) rejectInvalidation(entity, raw string) Result {
	return Result{Err: fmt.Errorf("cache: invalid %s id %q", entity, raw)}
}

func versioned(format string, args ...any) string {
	return KeyVersion + keySeparator + fmt.Sprintf(format, args...)
}
