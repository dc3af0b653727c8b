package batch

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ProgressOptions configures the progress reporter.
type ProgressOptions struct {
	// Stage is the name printed in front of every line.
	Stage string

	// Total is the number of residual units this run will attempt.
	Total int

	// Output is where progress lines go. Default: os.Stdout.
	Output io.Writer

	// UpdateInterval is how often a progress line is printed.
	// Default: 5s.
	UpdateInterval time.Duration
}

// Progress periodically reports completed/total counts for a running pool
// and prints a final summary when stopped.
type Progress struct {
	opts    ProgressOptions
	printer *message.Printer

	done    atomic.Int64
	failed  atomic.Int64
	start   time.Time
	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool
}

func NewProgress(opts ProgressOptions) *Progress {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 5 * time.Second
	}

	return &Progress{
		opts:    opts,
		printer: message.NewPrinter(language.English),
		stopCh:  make(chan struct{}),
	}
}

func (p *Progress) Start() {
	p.start = time.Now()
	p.printer.Fprintf(p.opts.Output, "[%s] %d units to process\n",
		p.opts.Stage, p.opts.Total)
	go p.updateLoop()
}

func (p *Progress) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
}

// UnitDone records one finished unit.
func (p *Progress) UnitDone(succeeded bool) {
	p.done.Add(1)
	if !succeeded {
		p.failed.Add(1)
	}
}

func (p *Progress) updateLoop() {
	ticker := time.NewTicker(p.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.printFinal()
			return
		case <-ticker.C:
			p.printLine()
		}
	}
}

func (p *Progress) printLine() {
	done := p.done.Load()
	failed := p.failed.Load()
	p.printer.Fprintf(p.opts.Output, "[%s] progress: %d/%d | failed: %d | elapsed: %s\n",
		p.opts.Stage, done, p.opts.Total, failed, formatDuration(time.Since(p.start)))
}

func (p *Progress) printFinal() {
	done := p.done.Load()
	failed := p.failed.Load()
	p.printer.Fprintf(p.opts.Output, "[%s] finished: %d processed | %d succeeded | %d failed | total time: %s\n",
		p.opts.Stage, done, done-failed, failed, formatDuration(time.Since(p.start)))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
