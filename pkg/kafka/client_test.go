package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
)

type scriptedProcessor struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	cancel context.CancelFunc
}

func (p *scriptedProcessor) Process(ctx context.Context, task tasks.AssemblyTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.cancel != nil {
		p.cancel()
	}
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
	resets int
}

func newMemCounter() *memCounter { return &memCounter{counts: map[string]int64{}} }

func (c *memCounter) Incr(ctx context.Context, requestID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[requestID]++
	return c.counts[requestID], nil
}

func (c *memCounter) Reset(ctx context.Context, requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	delete(c.counts, requestID)
}

func noBackoff(t *testing.T) {
	t.Helper()
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })
}

var transient = apperr.New(apperr.IOFailure, "extract", "磁盘已满")

func TestRetryUntilSuccess(t *testing.T) {
	noBackoff(t)
	p := &scriptedProcessor{errs: []error{transient, transient}}
	counter := newMemCounter()

	done := processWithRetry(context.Background(), p, counter, tasks.AssemblyTask{RequestID: "r1"})
	assert.True(t, done)
	assert.Equal(t, 3, p.calls)
	assert.Empty(t, counter.counts)
	assert.Equal(t, 1, counter.resets)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	noBackoff(t)
	p := &scriptedProcessor{errs: []error{transient, transient, transient, transient, transient}}
	counter := newMemCounter()

	done := processWithRetry(context.Background(), p, counter, tasks.AssemblyTask{RequestID: "r2"})
	assert.True(t, done)
	assert.Equal(t, maxAttempts, p.calls)
	assert.Empty(t, counter.counts)
}

func TestRetryResumesCountFromCounter(t *testing.T) {
	noBackoff(t)
	p := &scriptedProcessor{errs: []error{transient, transient, transient}}
	counter := newMemCounter()
	// 上一个进程在提交 offset 前已经失败过两次
	counter.counts["r3"] = 2

	done := processWithRetry(context.Background(), p, counter, tasks.AssemblyTask{RequestID: "r3"})
	assert.True(t, done)
	assert.Equal(t, 1, p.calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	noBackoff(t)
	notFound := apperr.New(apperr.NotFound, "assemble.resolving", "归档 404 不存在")
	p := &scriptedProcessor{errs: []error{notFound, notFound}}

	done := processWithRetry(context.Background(), p, newMemCounter(), tasks.AssemblyTask{RequestID: "r4"})
	assert.True(t, done)
	assert.Equal(t, 1, p.calls)
}

func TestRetryFallsBackToLocalCount(t *testing.T) {
	noBackoff(t)
	p := &scriptedProcessor{errs: []error{transient, transient, transient, transient}}
	counter := newMemCounter()
	counter.err = errors.New("redis down")

	done := processWithRetry(context.Background(), p, counter, tasks.AssemblyTask{RequestID: "r5"})
	assert.True(t, done)
	assert.Equal(t, maxAttempts, p.calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	noBackoff(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptedProcessor{errs: []error{transient, transient}, cancel: cancel}

	done := processWithRetry(ctx, p, newMemCounter(), tasks.AssemblyTask{RequestID: "r6"})
	assert.False(t, done)
	assert.Equal(t, 1, p.calls)
}
