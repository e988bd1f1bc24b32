package speech

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultPhraseGap = 1500 * time.Millisecond

// MockCapability replays scripted phrases. Each phrase is reported as an
// interim preview of its first half and then as a final result. After the
// last phrase the recognizer ends on its own, as a platform recognizer does
// after a silence timeout.
type MockCapability struct {
	Phrases []string
	Gap     time.Duration
}

func (c *MockCapability) NewRecognizer(_ Options, h Handler) (Recognizer, error) {
	gap := c.Gap
	if gap <= 0 {
		gap = defaultPhraseGap
	}
	return &mockRecognizer{
		phrases: append([]string(nil), c.Phrases...),
		gap:     gap,
		handler: h,
	}, nil
}

type mockRecognizer struct {
	phrases []string
	gap     time.Duration
	handler Handler

	mu     sync.Mutex
	next   int
	gen    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Start begins a capture run. Starting while a run is active is a no-op.
func (m *mockRecognizer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.gen++
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx, m.gen)
	return nil
}

func (m *mockRecognizer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return nil
}

func (m *mockRecognizer) Close() error {
	m.mu.Lock()
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *mockRecognizer) run(ctx context.Context, gen uint64) {
	defer m.wg.Done()
	defer m.handler.HandleEnd()

	for {
		phrase, ok := m.take()
		if !ok {
			if !sleep(ctx, m.gap) {
				return
			}
			m.finish(gen)
			return
		}
		if !sleep(ctx, m.gap/2) {
			return
		}
		if interim := interimOf(phrase); interim != "" {
			m.handler.HandleResults([]Result{{Text: interim}})
		}
		if !sleep(ctx, m.gap/2) {
			return
		}
		m.handler.HandleResults([]Result{{Text: phrase, Final: true}})
	}
}

func (m *mockRecognizer) take() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next >= len(m.phrases) {
		return "", false
	}
	p := m.phrases[m.next]
	m.next++
	return p, true
}

// finish clears the active run unless a newer one replaced it.
func (m *mockRecognizer) finish(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func interimOf(phrase string) string {
	words := strings.Fields(phrase)
	if len(words) < 2 {
		return ""
	}
	return strings.Join(words[:len(words)/2], " ")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
