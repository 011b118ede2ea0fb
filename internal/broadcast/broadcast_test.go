package broadcast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "castbot/internal/transport"
	"castbot/internal/transport/transporttest"
	logx "castbot/pkg/logx"
)

func recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprint(1000 + i)
	}
	return out
}

func TestRunCountsFailures(t *testing.T) {
	fake := transporttest.New()
	fake.Fail["1001"] = errors.New("telegram: Forbidden: bot was blocked by the user (403)")
	fake.Fail["1003"] = errors.New("telegram: chat not found (400)")

	svc := New(Config{}, fake, logx.Nop())
	res := svc.Run(context.Background(), "test", recipients(5), Message{Text: "hello"})

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "1001", res.Failures[0].Recipient)
	assert.Equal(t, "1003", res.Failures[1].Recipient)
	assert.False(t, res.Canceled)
	assert.Equal(t, 3, fake.SentCount())

	st, ok := svc.Last()
	require.True(t, ok)
	assert.Equal(t, res.JobID, st.ID)
	assert.False(t, st.Running)
	assert.Equal(t, 5, st.Done)
	assert.Equal(t, 2, st.Failed)
}

func TestRunSendsPhotoWithCaption(t *testing.T) {
	fake := transporttest.New()
	svc := New(Config{}, fake, logx.Nop())

	res := svc.Run(context.Background(), "photo", []string{"1", "@news"}, Message{PhotoID: "AgAC-file", Text: "release 1.2", ParseMode: "HTML"})
	assert.Equal(t, 2, res.Sent)

	got := fake.SentTo("@news")
	require.Len(t, got, 1)
	assert.Equal(t, "AgAC-file", got[0].PhotoID)
	assert.Equal(t, "release 1.2", got[0].Text)
	assert.Equal(t, "HTML", got[0].Opt.ParseMode)
}

func TestRunHonorsSendInterval(t *testing.T) {
	fake := transporttest.New()
	svc := New(Config{SendInterval: 20 * time.Millisecond}, fake, logx.Nop())

	start := time.Now()
	res := svc.Run(context.Background(), "paced", recipients(4), Message{Text: "x"})
	assert.Equal(t, 4, res.Sent)
	// the first send is immediate, the next three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestRunPausesAfterSlowSends(t *testing.T) {
	const (
		sendTook = 30 * time.Millisecond
		gap      = 20 * time.Millisecond
	)
	var starts []time.Time
	fake := transporttest.New()
	fake.OnSend = func(kit.Recipient) {
		starts = append(starts, time.Now())
		time.Sleep(sendTook)
	}
	svc := New(Config{SendInterval: gap}, fake, logx.Nop())

	res := svc.Run(context.Background(), "slow", recipients(3), Message{Text: "x"})
	require.Equal(t, 3, res.Sent)
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		// a slow send never eats into the pause that follows it
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), sendTook+gap, "send %d", i)
	}
}

func TestRunCanceledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := transporttest.New()
	fake.OnSend = func(to kit.Recipient) {
		if to == "1000" {
			time.AfterFunc(20*time.Millisecond, cancel)
		}
	}
	svc := New(Config{SendInterval: time.Hour}, fake, logx.Nop())

	done := make(chan Result, 1)
	go func() { done <- svc.Run(ctx, "pause", recipients(3), Message{Text: "x"}) }()
	select {
	case res := <-done:
		assert.True(t, res.Canceled)
		assert.Equal(t, 1, res.Sent)
		assert.Equal(t, 2, res.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunCanceledCountsRemainingAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := transporttest.New()
	fake.OnSend = func(to kit.Recipient) {
		if to == "1002" {
			cancel()
		}
	}
	svc := New(Config{}, fake, logx.Nop())
	res := svc.Run(ctx, "cancel", recipients(5), Message{Text: "x"})

	assert.True(t, res.Canceled)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 3, res.Failed)
	for _, f := range res.Failures {
		assert.Equal(t, ReasonCanceled, f.Reason)
	}
	assert.Equal(t, res.Total, res.Sent+res.Failed)
}

func TestFormatReport(t *testing.T) {
	res := Result{
		Sent:   3,
		Failed: 2,
		Failures: []Failure{
			{Recipient: "1001", Reason: "telegram: Forbidden: bot was blocked by the user (403)"},
			{Recipient: "@a<b>", Reason: "chat not found"},
		},
	}
	got := FormatReport(res, ReportOptions{})
	want := "✅ Broadcast finished!\n\n" +
		"📊 Stats:\n" +
		"• Delivered: 3\n" +
		"• Failed: 2\n\n" +
		"❌ Not delivered:\n" +
		"• 1001 (telegram: Forbidden: bot was b)\n" +
		"• @a&lt;b&gt; (chat not found)"
	assert.Equal(t, want, got)
}

func TestFormatReportCollapsesExtraFailures(t *testing.T) {
	fake := transporttest.New()
	ids := recipients(20)
	for _, id := range ids[:13] {
		fake.Fail[kit.Recipient(id)] = errors.New("boom")
	}
	svc := New(Config{}, fake, logx.Nop())
	res := svc.Run(context.Background(), "many", ids, Message{Text: "x"})

	got := FormatReport(res, ReportOptions{})
	assert.Contains(t, got, "• Delivered: 7\n")
	assert.Contains(t, got, "• Failed: 13\n")
	assert.Equal(t, 10, strings.Count(got, "(boom)"))
	assert.True(t, strings.HasSuffix(got, "... and 3 more"), got)
}

func TestReportTally(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		failures int
		tail     string
	}{
		{name: "all delivered", total: 5},
		{name: "one failure", total: 5, failures: 1},
		{name: "exactly ten", total: 12, failures: 10},
		{name: "eleven", total: 12, failures: 11, tail: "... and 1 more"},
		{name: "all failed", total: 25, failures: 25, tail: "... and 15 more"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := transporttest.New()
			ids := recipients(tt.total)
			for _, id := range ids[:tt.failures] {
				fake.Fail[kit.Recipient(id)] = errors.New("telegram: Forbidden: bot was blocked by the user (403)")
			}
			res := New(Config{}, fake, logx.Nop()).Run(context.Background(), tt.name, ids, Message{Text: "x"})

			if res.Sent != tt.total-tt.failures || res.Failed != tt.failures {
				t.Fatalf("sent/failed = %d/%d, want %d/%d", res.Sent, res.Failed, tt.total-tt.failures, tt.failures)
			}
			got := FormatReport(res, ReportOptions{})
			if want := fmt.Sprintf("• Delivered: %d\n", res.Sent); !strings.Contains(got, want) {
				t.Errorf("report missing %q:\n%s", want, got)
			}
			if n, want := strings.Count(got, "(telegram: Forbidden: bot was b)"), min(tt.failures, 10); n != want {
				t.Errorf("listed %d failures, want %d", n, want)
			}
			if tt.tail == "" {
				if strings.Contains(got, "more") {
					t.Errorf("unexpected tail in:\n%s", got)
				}
			} else if !strings.HasSuffix(got, tt.tail) {
				t.Errorf("report does not end with %q:\n%s", tt.tail, got)
			}
		})
	}
}

func TestFormatReportCanceled(t *testing.T) {
	if got := FormatReport(Result{Canceled: true}, ReportOptions{}); !strings.Contains(got, "interrupted") {
		t.Errorf("canceled report = %q, want it to mention the interruption", got)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name           string
		static, stored []string
		want           []string
	}{
		{name: "empty", want: nil},
		{name: "static only", static: []string{"@news", " 1 "}, want: []string{"@news", "1"}},
		{name: "stored only", stored: []string{"2", "3"}, want: []string{"2", "3"}},
		{
			name:   "static first, duplicates dropped",
			static: []string{" 1 ", "", "@news", "1"},
			stored: []string{"2", "@news", "3"},
			want:   []string{"1", "@news", "2", "3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.static, tt.stored); !slices.Equal(got, tt.want) {
				t.Errorf("Merge(%q, %q) = %q, want %q", tt.static, tt.stored, got, tt.want)
			}
		})
	}
}

func TestStatusPruneKeepsBound(t *testing.T) {
	svc := New(Config{StatusMax: 3}, transporttest.New(), logx.Nop())
	var last string
	for i := 0; i < 6; i++ {
		last = svc.Run(context.Background(), "n", nil, Message{Text: "x"}).JobID
	}
	svc.statusMu.RLock()
	n := len(svc.status)
	svc.statusMu.RUnlock()
	assert.LessOrEqual(t, n, 3)

	_, ok := svc.Status(last)
	assert.True(t, ok)
}
