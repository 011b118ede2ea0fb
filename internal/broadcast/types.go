package broadcast

import (
	"sync"
	"time"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const (
	DefaultSendInterval = 50 * time.Millisecond

	// ReasonCanceled marks recipients skipped because the context ended.
	ReasonCanceled = "canceled"
)

type Config struct {
	// SendInterval is the pause between two sends. 0 disables pacing.
	SendInterval time.Duration
	StatusMax    int
	StatusTTL    time.Duration
}

// Message is what gets delivered. With PhotoID set, Text becomes the caption.
type Message struct {
	Text           string
	PhotoID        string
	ParseMode      string
	DisablePreview bool
}

func (m Message) IsPhoto() bool { return m.PhotoID != "" }

type Failure struct {
	Recipient string
	Reason    string
}

type Result struct {
	JobID      string
	Name       string
	Total      int
	Sent       int
	Failed     int
	Failures   []Failure
	Canceled   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// JobStatus is the retained view of a job, running or finished.
type JobStatus struct {
	ID       string
	Name     string
	Total    int
	Done     int
	Sent     int
	Failed   int
	Failures []Failure
	// CreatedAt is when the entry was registered; used for pruning jobs
	// that never finished.
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
	Canceled  bool
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	sender kit.Sender
	log    logx.Logger

	statusMu sync.RWMutex
	status   map[string]*JobStatus
	lastID   string
	// statusMax/statusTTL bound in-memory status retention.
	statusMax int
	statusTTL time.Duration
}
