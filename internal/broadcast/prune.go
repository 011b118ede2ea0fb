package broadcast

import (
	"cmp"
	"slices"
	"time"
)

const (
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// lastActivity is the finish time, or the registration time for jobs that
// are still running.
func (st *JobStatus) lastActivity() time.Time {
	if !st.DoneAt.IsZero() {
		return st.DoneAt
	}
	if !st.StartedAt.IsZero() {
		return st.StartedAt
	}
	return st.CreatedAt
}

// pruneStatus expires entries idle for longer than the TTL, then trims the
// history to statusMax. Finished jobs go before running ones, oldest first.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	limit := cmp.Or(max(s.statusMax, 0), defaultStatusMax)
	ttl := cmp.Or(max(s.statusTTL, 0), defaultStatusTTL)

	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			continue
		}
		if at := st.lastActivity(); !at.IsZero() && now.Sub(at) > ttl {
			delete(s.status, id)
		}
	}

	excess := len(s.status) - limit
	if excess <= 0 {
		return
	}

	jobs := make([]*JobStatus, 0, len(s.status))
	for _, st := range s.status {
		jobs = append(jobs, st)
	}
	slices.SortFunc(jobs, func(a, b *JobStatus) int {
		if a.Running != b.Running {
			if a.Running {
				return 1
			}
			return -1
		}
		return a.lastActivity().Compare(b.lastActivity())
	})
	for _, st := range jobs[:excess] {
		delete(s.status, st.ID)
	}
}
