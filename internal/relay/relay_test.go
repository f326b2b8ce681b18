package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/adapter/loopback"
	"github.com/tokligence/streamledger/internal/history"
)

// fakeStore counts saves and records what was persisted.
type fakeStore struct {
	mu      sync.Mutex
	saves   []history.Record
	ctxErrs []error
	err     error
}

func (s *fakeStore) Save(ctx context.Context, prompt, response string) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.err != nil {
		return history.Record{}, s.err
	}
	rec := history.NewRecord(prompt, response)
	s.saves = append(s.saves, rec)
	return rec, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ctxErrs)
}

// scriptedProvider yields items then fails with err (or ends cleanly).
type scriptedProvider struct {
	items   []string
	err     error
	openErr error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) OpenStream(context.Context, adapter.Request) (adapter.ChunkStream, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &scriptedStream{items: append([]string(nil), p.items...), err: p.err}, nil
}

type scriptedStream struct {
	items []string
	err   error
}

func (s *scriptedStream) Recv() (string, error) {
	if len(s.items) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	next := s.items[0]
	s.items = s.items[1:]
	return next, nil
}

func (s *scriptedStream) Close() error { return nil }

type recordingSink struct {
	got    []string
	failAt int // 1-based index of the Send that fails; 0 never fails
}

func (s *recordingSink) Send(fragment string) error {
	if s.failAt > 0 && len(s.got)+1 == s.failAt {
		return errors.New("broken pipe")
	}
	s.got = append(s.got, fragment)
	return nil
}

type countingRecorder struct {
	started, fragments, persistFailures int
	finished                            []State
}

func (c *countingRecorder) StreamStarted()        { c.started++ }
func (c *countingRecorder) FragmentRelayed(int)   { c.fragments++ }
func (c *countingRecorder) PersistenceFailed()    { c.persistFailures++ }
func (c *countingRecorder) StreamFinished(s State, _ time.Duration) {
	c.finished = append(c.finished, s)
}

func newRelay(t *testing.T, p adapter.Provider, store Saver, rec Recorder) *Relay {
	t.Helper()
	src, err := adapter.NewSource(p, adapter.Request{Model: "test"})
	require.NoError(t, err)
	r, err := New(Config{Source: src, Store: store, Recorder: rec})
	require.NoError(t, err)
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Store: &fakeStore{}})
	require.Error(t, err)
	src, _ := adapter.NewSource(loopback.New(0), adapter.Request{})
	_, err = New(Config{Source: src})
	require.Error(t, err)
}

func TestRunPersistsCompletedStream(t *testing.T) {
	store := &fakeStore{}
	rec := &countingRecorder{}
	sink := &recordingSink{}
	r := newRelay(t, loopback.New(0), store, rec)

	res, err := r.Run(context.Background(), "hi", adapter.FormatText, sink)
	require.NoError(t, err)

	want := "Echo: hi This is a simulated streaming response. "
	assert.Equal(t, want, strings.Join(sink.got, ""))
	require.Len(t, store.saves, 1)
	assert.Equal(t, "hi", store.saves[0].Prompt)
	assert.Equal(t, want, store.saves[0].Response)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, store.saves[0].ID, res.RecordID)
	assert.Equal(t, 8, res.Fragments)
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 8, rec.fragments)
	assert.Equal(t, []State{StateCompleted}, rec.finished)
}

func TestRunPersistsRenderedFragments(t *testing.T) {
	store := &fakeStore{}
	sink := &recordingSink{}
	r := newRelay(t, &scriptedProvider{items: []string{"Hello ", "world"}}, store, nil)

	_, err := r.Run(context.Background(), "p", adapter.FormatOpenAI, sink)
	require.NoError(t, err)

	want := adapter.Render("Hello ", adapter.FormatOpenAI) + adapter.Render("world", adapter.FormatOpenAI)
	assert.Equal(t, want, strings.Join(sink.got, ""))
	require.Len(t, store.saves, 1)
	assert.Equal(t, want, store.saves[0].Response)
}

func TestRunPersistsPartialResponseOnMidStreamFailure(t *testing.T) {
	cause := errors.New("upstream reset")
	store := &fakeStore{}
	sink := &recordingSink{}
	rec := &countingRecorder{}
	r := newRelay(t, &scriptedProvider{items: []string{"A", "B", "C"}, err: cause}, store, rec)

	res, err := r.Run(context.Background(), "p", adapter.FormatText, sink)
	require.ErrorIs(t, err, ErrStreamInterrupted)
	require.ErrorIs(t, err, cause)

	var interrupted *InterruptedError
	require.ErrorAs(t, err, &interrupted)
	assert.Equal(t, 3, interrupted.Fragments)

	assert.Equal(t, []string{"A", "B", "C"}, sink.got)
	require.Len(t, store.saves, 1)
	assert.Equal(t, "ABC", store.saves[0].Response)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateFailed}, rec.finished)
}

func TestRunPersistsEmptyResponseWhenUpstreamUnavailable(t *testing.T) {
	openErr := &adapter.UnavailableError{Provider: "scripted", Attempts: 3, Err: errors.New("503")}
	store := &fakeStore{}
	sink := &recordingSink{}
	r := newRelay(t, &scriptedProvider{openErr: openErr}, store, nil)

	res, err := r.Run(context.Background(), "p", adapter.FormatText, sink)
	require.ErrorIs(t, err, adapter.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, ErrStreamInterrupted)
	assert.Empty(t, sink.got)
	require.Len(t, store.saves, 1)
	assert.Equal(t, "", store.saves[0].Response)
	assert.Equal(t, "p", store.saves[0].Prompt)
	assert.Equal(t, StateFailed, res.State)
}

func TestRunStopsWhenSinkFails(t *testing.T) {
	store := &fakeStore{}
	sink := &recordingSink{failAt: 3}
	r := newRelay(t, &scriptedProvider{items: []string{"A", "B", "C", "D"}}, store, nil)

	_, err := r.Run(context.Background(), "p", adapter.FormatText, sink)
	require.ErrorIs(t, err, ErrStreamInterrupted)
	require.Len(t, store.saves, 1)
	// The fragment that could not be delivered is not recorded.
	assert.Equal(t, "AB", store.saves[0].Response)
}

func TestRunSavesWithLiveContextAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &fakeStore{}
	sink := SinkFunc(func(string) error {
		cancel()
		return nil
	})
	r := newRelay(t, loopback.New(time.Millisecond), store, nil)

	_, err := r.Run(ctx, "hi", adapter.FormatText, sink)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, store.calls())
	assert.NoError(t, store.ctxErrs[0])
	assert.Equal(t, "Echo: ", store.saves[0].Response)
}

func TestRunReturnsPersistenceErrorOnCompletedStream(t *testing.T) {
	store := &fakeStore{err: &history.PersistenceError{Op: "commit", Err: errors.New("disk full")}}
	rec := &countingRecorder{}
	r := newRelay(t, &scriptedProvider{items: []string{"ok"}}, store, rec)

	res, err := r.Run(context.Background(), "p", adapter.FormatText, &recordingSink{})
	require.ErrorIs(t, err, history.ErrPersistence)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 1, rec.persistFailures)
	assert.Equal(t, 1, store.calls())
}

func TestRunJoinsStreamAndPersistenceErrors(t *testing.T) {
	cause := errors.New("reset")
	store := &fakeStore{err: errors.New("connection lost")}
	r := newRelay(t, &scriptedProvider{items: []string{"x"}, err: cause}, store, nil)

	_, err := r.Run(context.Background(), "p", adapter.FormatText, &recordingSink{})
	require.ErrorIs(t, err, ErrStreamInterrupted)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, history.ErrPersistence)
	assert.Equal(t, 1, store.calls())
}

func TestRunConcurrentStreamsAreIsolated(t *testing.T) {
	store := &fakeStore{}
	r := newRelay(t, loopback.New(0), store, nil)

	prompts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	var wg sync.WaitGroup
	for _, p := range prompts {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := r.Run(context.Background(), p, adapter.FormatText, &recordingSink{})
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	require.Len(t, store.saves, len(prompts))
	for _, rec := range store.saves {
		want := strings.Join(loopback.Tokens(rec.Prompt), "")
		assert.Equal(t, want, rec.Response, "prompt %s", rec.Prompt)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
}
