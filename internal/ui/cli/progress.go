package cli

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progressReporter draws Phase 1 progress. A nil reporter ignores calls.
type progressReporter struct {
	w   io.Writer
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

// Update matches router.ProgressFunc.
func (p *progressReporter) Update(done, total int, relPath string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(18),
			progressbar.OptionSetDescription("analysing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	if p.bar.GetMax() != total {
		p.bar.ChangeMax(total)
	}
	_ = p.bar.Set(done)
	if done >= total {
		_ = p.bar.Finish()
	}
}

// Reset drops the current bar so the next run starts a fresh one.
func (p *progressReporter) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = nil
}
