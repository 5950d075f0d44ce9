// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
)

// Task is a long-lived unit of a node: it runs until ctx is cancelled
// and returns nil on a clean stop.
type Task func(ctx context.Context) error

// Run starts every task and blocks until all have returned. The first
// task to return a non-nil error cancels the others. Run returns the
// joined errors of every failed task, or nil.
func Run(ctx context.Context, tasks ...Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(tasks))
	for _, task := range tasks {
		go func() {
			err := task(ctx)
			if err != nil {
				cancel()
			}
			results <- err
		}()
	}

	var errs []error
	for range tasks {
		if err := <-results; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
