// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// semaphoreJobServer is the default JobServer (§4.H, §5): a weighted
// semaphore capping concurrent recipe execution at max slots. Acquire is
// context-aware so a cancelled run (keepGoing=false, fatal error) unblocks
// waiters instead of leaking goroutines.
type semaphoreJobServer struct {
	sem *semaphore.Weighted
}

// NewJobServer returns a JobServer allowing up to max concurrent holders.
// max<=0 is treated as 1 (GNU Make's own default of serial execution).
func NewJobServer(max int) JobServer {
	if max <= 0 {
		max = 1
	}
	return &semaphoreJobServer{sem: semaphore.NewWeighted(int64(max))}
}

func (j *semaphoreJobServer) Acquire(ctx context.Context) (Lock, error) {
	if err := j.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &semaphoreLock{sem: j.sem}, nil
}

type semaphoreLock struct {
	sem *semaphore.Weighted
}

func (l *semaphoreLock) Release() {
	l.sem.Release(1)
}
