package session

import "context"

// SweepJob implements scheduler.Job: it periodically sweeps every active
// project's lock manager for stale locks (§4.2's periodic sweep, layered on
// top of the opportunistic per-acquisition sweep already in lock.Manager).
type SweepJob struct {
	resolver *Resolver
}

// NewSweepJob creates a SweepJob bound to resolver.
func NewSweepJob(resolver *Resolver) *SweepJob {
	return &SweepJob{resolver: resolver}
}

func (j *SweepJob) Name() string { return "stale-lock-sweep" }

func (j *SweepJob) Run(ctx context.Context) error {
	var firstErr error
	j.resolver.Each(func(s *Session) {
		if _, err := s.Locks.SweepStale(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}
