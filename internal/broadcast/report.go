package broadcast

import (
	"fmt"
	"strings"

	"castbot/pkg/tgui"
)

const (
	DefaultReportFailures = 10
	DefaultReasonMaxLen   = 30
)

// StartedText is the status message shown while a job runs.
const StartedText = "📤 Broadcast started..."

type ReportOptions struct {
	// MaxFailures caps listed failure entries; the rest collapse into
	// "... and M more".
	MaxFailures int
	// ReasonMaxLen truncates each failure reason, in runes.
	ReasonMaxLen int
}

func (o ReportOptions) withDefaults() ReportOptions {
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultReportFailures
	}
	if o.ReasonMaxLen <= 0 {
		o.ReasonMaxLen = DefaultReasonMaxLen
	}
	return o
}

// FormatReport renders res as Telegram HTML.
func FormatReport(res Result, opt ReportOptions) string {
	opt = opt.withDefaults()

	var b strings.Builder
	if res.Canceled {
		b.WriteString("⚠️ Broadcast interrupted!\n\n")
	} else {
		b.WriteString("✅ Broadcast finished!\n\n")
	}
	b.WriteString("📊 Stats:\n")
	fmt.Fprintf(&b, "• Delivered: %d\n", res.Sent)
	fmt.Fprintf(&b, "• Failed: %d\n", res.Failed)

	if len(res.Failures) > 0 {
		b.WriteString("\n❌ Not delivered:\n")
		for i, f := range res.Failures {
			if i == opt.MaxFailures {
				break
			}
			reason := tgui.CutRunes(f.Reason, opt.ReasonMaxLen)
			fmt.Fprintf(&b, "• %s (%s)\n", tgui.Esc(f.Recipient), tgui.Esc(reason))
		}
		if more := len(res.Failures) - opt.MaxFailures; more > 0 {
			fmt.Fprintf(&b, "... and %d more", more)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
