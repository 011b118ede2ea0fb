package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// failuresKept caps the failure list retained in JobStatus. Run's Result is
// never capped.
const failuresKept = 200

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		status: map[string]*JobStatus{},
	}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing and retention. Jobs already running keep their pacing.
func (s *Service) Apply(cfg Config) {
	if cfg.SendInterval < 0 {
		cfg.SendInterval = 0
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.statusMu.Lock()
	s.statusMax = cfg.StatusMax
	s.statusTTL = cfg.StatusTTL
	s.statusMu.Unlock()
}

func (s *Service) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SendInterval
}

// pause sleeps d after a send attempt. It reports false when ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run delivers msg to every recipient in order and blocks until the list is
// exhausted or ctx ends.
func (s *Service) Run(ctx context.Context, name string, recipients []string, msg Message) Result {
	now := time.Now()
	res := Result{
		JobID:     uuid.NewString(),
		Name:      name,
		Total:     len(recipients),
		StartedAt: now,
	}
	s.register(res)
	log := s.log.With(logx.String("job", res.JobID), logx.String("name", name))
	log.Info("broadcast job started", logx.Int("total", res.Total), logx.Bool("photo", msg.IsPhoto()))

	gap := s.interval()
	for i, to := range recipients {
		if i > 0 && !pause(ctx, gap) {
			s.cancelRest(&res, recipients[i:])
			break
		}
		err := s.sendOne(ctx, kit.Recipient(to), msg)
		if err == nil {
			res.Sent++
			s.markDone(res.JobID, nil)
			continue
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			s.cancelRest(&res, recipients[i:])
			break
		}
		f := Failure{Recipient: to, Reason: err.Error()}
		res.Failed++
		res.Failures = append(res.Failures, f)
		s.markDone(res.JobID, &f)
		log.Warn("broadcast send failed", logx.String("to", to), logx.Err(err))
	}
	res.FinishedAt = time.Now()
	s.finish(res)

	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", res.Duration()),
	}
	switch {
	case res.Canceled:
		log.Warn("broadcast job canceled", fields...)
	case res.Failed > 0:
		log.Warn("broadcast job finished with failures", fields...)
	default:
		log.Info("broadcast job finished", fields...)
	}
	return res
}

func (s *Service) sendOne(ctx context.Context, to kit.Recipient, msg Message) error {
	if s.sender == nil {
		return errors.New("no sender")
	}
	opt := &kit.SendOptions{ParseMode: msg.ParseMode, DisablePreview: msg.DisablePreview}
	if msg.IsPhoto() {
		_, err := s.sender.SendPhoto(ctx, to, kit.Photo{FileID: msg.PhotoID, Caption: msg.Text}, opt)
		return err
	}
	_, err := s.sender.SendText(ctx, to, msg.Text, opt)
	return err
}

func (s *Service) cancelRest(res *Result, rest []string) {
	res.Canceled = true
	for _, to := range rest {
		f := Failure{Recipient: to, Reason: ReasonCanceled}
		res.Failed++
		res.Failures = append(res.Failures, f)
		s.markDone(res.JobID, &f)
	}
}

// Status returns a copy of a retained job.
func (s *Service) Status(jobID string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[jobID]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	return copyStatus(st), true
}

// Last returns the most recently started job, if still retained.
func (s *Service) Last() (JobStatus, bool) {
	s.statusMu.RLock()
	id := s.lastID
	s.statusMu.RUnlock()
	if id == "" {
		return JobStatus{}, false
	}
	return s.Status(id)
}

func copyStatus(st *JobStatus) JobStatus {
	cp := *st
	if len(st.Failures) > 0 {
		cp.Failures = append([]Failure(nil), st.Failures...)
	}
	return cp
}

func (s *Service) register(res Result) {
	s.pruneStatus(res.StartedAt)
	s.statusMu.Lock()
	s.status[res.JobID] = &JobStatus{
		ID:        res.JobID,
		Name:      res.Name,
		Total:     res.Total,
		CreatedAt: res.StartedAt,
		StartedAt: res.StartedAt,
		Running:   true,
	}
	s.lastID = res.JobID
	s.statusMu.Unlock()
}

func (s *Service) markDone(id string, f *Failure) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if st == nil {
		return
	}
	st.Done++
	if f == nil {
		st.Sent++
		return
	}
	st.Failed++
	if len(st.Failures) < failuresKept {
		st.Failures = append(st.Failures, *f)
	}
}

func (s *Service) finish(res Result) {
	s.statusMu.Lock()
	if st := s.status[res.JobID]; st != nil {
		st.DoneAt = res.FinishedAt
		st.Running = false
		st.Canceled = res.Canceled
	}
	s.statusMu.Unlock()
	s.pruneStatus(res.FinishedAt)
}
