package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	mu       sync.Mutex
	calls    int
	released int64
	err      error
}

func (p *fakeProcessor) ProcessDue(context.Context, int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return 2, nil
}

func (p *fakeProcessor) ReleaseStale(context.Context, time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released, nil
}

func (p *fakeProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestEffectWorker_PollsUntilStopped(t *testing.T) {
	p := &fakeProcessor{released: 1}
	w := NewEffectWorker(EffectWorkerConfig{PollInterval: 5 * time.Millisecond}, p, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return p.Calls() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	stopped := p.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, p.Calls())

	stats := w.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 2*stopped, stats.Processed)
	assert.Equal(t, int64(stopped), stats.Released)
}

func TestEffectWorker_RecordsErrors(t *testing.T) {
	p := &fakeProcessor{err: errors.New("database is locked")}
	w := NewEffectWorker(EffectWorkerConfig{PollInterval: time.Hour}, p, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return w.Stats().LastError != nil }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	assert.ErrorContains(t, w.Stats().LastError, "database is locked")
}

type orderWorker struct {
	name string
	log  *[]string
}

func (o orderWorker) Start(context.Context) error { *o.log = append(*o.log, "start "+o.name); return nil }
func (o orderWorker) Stop() error                 { *o.log = append(*o.log, "stop "+o.name); return nil }
func (o orderWorker) Name() string                { return o.name }

func TestWorkerManager_Lifecycle(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(orderWorker{name: "a", log: &log})
	m.Register(orderWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
	assert.Equal(t, []string{"a", "b"}, m.Names())
	assert.Equal(t, 2, m.GetWorkerCount())
}
