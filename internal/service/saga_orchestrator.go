package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type compensation struct {
	step string
	undo func(context.Context) error
}

// purchaseSaga runs purchase steps in order. When a step fails, the
// compensations of the steps that completed before it run in reverse order.
type purchaseSaga struct {
	completed     []string
	compensations []compensation
	logger        *zap.Logger
}

func newPurchaseSaga(logger *zap.Logger) *purchaseSaga {
	return &purchaseSaga{logger: logger}
}

// Step runs do. undo may be nil for steps with nothing to roll back.
func (s *purchaseSaga) Step(ctx context.Context, name string, do, undo func(context.Context) error) error {
	if err := do(ctx); err != nil {
		s.logger.Warn("purchase step failed", zap.String("step", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	s.completed = append(s.completed, name)
	if undo != nil {
		s.compensations = append(s.compensations, compensation{step: name, undo: undo})
	}
	return nil
}

// Completed lists the steps that succeeded, in order
func (s *purchaseSaga) Completed() []string {
	return s.completed
}

// Compensate undoes the completed steps, newest first. It keeps going when a
// compensation fails and runs even if ctx was cancelled.
func (s *purchaseSaga) Compensate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.undo(ctx); err != nil {
			s.logger.Error("compensation failed", zap.String("step", c.step), zap.Error(err))
			continue
		}
		s.logger.Info("compensated purchase step", zap.String("step", c.step))
	}
	s.compensations = nil
}
