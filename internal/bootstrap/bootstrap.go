// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bootstrap runs startup steps strictly in order. Each step returns
// only once the dependency it brings up is ready, so later steps never race
// earlier ones. The first failure stops the sequence.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// StepFunc brings one dependency up.
type StepFunc func(ctx context.Context) error

// Step is a named StepFunc.
type Step struct {
	Name string
	Run  StepFunc
}

// StepError reports which step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Sequencer holds the ordered steps.
type Sequencer struct {
	steps   []Step
	timeout time.Duration
	logger  *logger.Logger
}

// New returns an empty sequencer. A positive timeout bounds every step.
func New(timeout time.Duration, log *logger.Logger) *Sequencer {
	return &Sequencer{timeout: timeout, logger: log.Named("bootstrap")}
}

// Add appends a step.
func (s *Sequencer) Add(name string, fn StepFunc) *Sequencer {
	s.steps = append(s.steps, Step{Name: name, Run: fn})
	return s
}

// Steps lists step names in run order.
func (s *Sequencer) Steps() []string {
	names := make([]string, len(s.steps))
	for i, st := range s.steps {
		names[i] = st.Name
	}
	return names
}

// Run executes the steps in order and stops at the first error, which is
// returned as a *StepError.
func (s *Sequencer) Run(ctx context.Context) error {
	for _, st := range s.steps {
		start := time.Now()
		if err := s.runStep(ctx, st); err != nil {
			s.logger.Error("bootstrap step failed",
				logger.String("step", st.Name),
				logger.Duration("elapsed", time.Since(start)),
				logger.Error(err),
			)
			return &StepError{Step: st.Name, Err: err}
		}
		s.logger.Info("bootstrap step ready",
			logger.String("step", st.Name),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

func (s *Sequencer) runStep(ctx context.Context, st Step) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Run(ctx)
}
