package scrape

import (
	"strings"
	"sync"
)

// Collector accumulates pushed scrape updates into a ProblemContext snapshot.
// It implements Provider and is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	context  ProblemContext
	observed bool

	onUpdate func(context ProblemContext)
}

type CollectorOption func(*Collector)

// WithUpdateHandler registers a callback invoked with a snapshot after every
// accepted update. The callback runs on the updater's goroutine.
func WithUpdateHandler(handler func(context ProblemContext)) CollectorOption {
	return func(c *Collector) { c.onUpdate = handler }
}

func NewCollector(opts ...CollectorOption) *Collector {
	collector := &Collector{}
	for _, opt := range opts {
		opt(collector)
	}
	return collector
}

// UpdateTitle records the scraped problem title. Empty content after cleaning
// is ignored so a transient blank scrape cannot erase a known title.
func (c *Collector) UpdateTitle(content string) {
	c.update(func(context *ProblemContext, cleaned string) { context.Title = cleaned }, content)
}

// UpdateDescription records the scraped problem statement.
func (c *Collector) UpdateDescription(content string) {
	c.update(func(context *ProblemContext, cleaned string) { context.Description = cleaned }, content)
}

// UpdateEditor records the current editor buffer.
func (c *Collector) UpdateEditor(content string) {
	c.update(func(context *ProblemContext, cleaned string) { context.Code = cleaned }, content)
}

// UpdateTestCases records the scraped example test cases.
func (c *Collector) UpdateTestCases(content string) {
	c.update(func(context *ProblemContext, cleaned string) { context.TestCases = cleaned }, content)
}

func (c *Collector) update(apply func(context *ProblemContext, cleaned string), content string) {
	cleaned := Clean(content)
	if cleaned == "" {
		return
	}

	c.mu.Lock()
	apply(&c.context, cleaned)
	c.observed = true
	snapshot := c.context
	onUpdate := c.onUpdate
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snapshot)
	}
}

// ProblemContext returns a copy of the latest snapshot, or nil if nothing has
// been scraped yet.
func (c *Collector) ProblemContext() *ProblemContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.observed {
		return nil
	}
	snapshot := c.context
	return &snapshot
}

// Reset discards all collected content.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = ProblemContext{}
	c.observed = false
}

// Clean normalizes scraped page text: non-breaking spaces become regular
// spaces and surrounding whitespace is trimmed.
func Clean(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, " ", " "))
}
