package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runSweep advances contract lifecycle state ahead of a challenge round so
// the round only sees contracts that can still pay.
func (s *Service) runSweep(ctx context.Context, now time.Time) {
	expired, err := s.cfg.Contracts.ExpireDue(ctx, now)
	if err != nil {
		log.WithError(err).Error("Could not expire due contracts")
	}
	completed, err := s.cfg.Contracts.CompleteExhausted(ctx)
	if err != nil {
		log.WithError(err).Error("Could not complete exhausted contracts")
	}
	if expired > 0 || completed > 0 {
		log.WithFields(logrus.Fields{
			"expired":   expired,
			"completed": completed,
		}).Info("Swept contract lifecycle")
	}
}
