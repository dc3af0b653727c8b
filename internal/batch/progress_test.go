package batch

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgress_FinalSummary(t *testing.T) {
	buf := &syncBuffer{}
	p := NewProgress(ProgressOptions{
		Stage:          "clip",
		Total:          1500,
		Output:         buf,
		UpdateInterval: time.Hour,
	})

	p.Start()
	for i := 0; i < 1500; i++ {
		p.UnitDone(i%100 != 0)
	}
	p.Stop()

	// The final line is written by the update goroutine after Stop.
	assert.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, "1,500 processed") &&
			strings.Contains(out, "15 failed")
	}, time.Second, 10*time.Millisecond)
}

func TestProgress_StopIsIdempotent(t *testing.T) {
	p := NewProgress(ProgressOptions{Stage: "clip", Total: 1, Output: &syncBuffer{}})
	p.Start()
	p.Stop()
	p.Stop()
}
