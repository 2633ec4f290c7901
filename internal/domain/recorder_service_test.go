package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second
const pollEvery = 5 * time.Millisecond

// ---- fakes ----

type fakeCapture struct {
	mu       sync.Mutex
	granted  bool
	checkErr error
	startErr error
	sinks    map[string]ports.FragmentSink
	stops    int

	stoppedTakes []int
}

func (f *fakeCapture) CheckPermission(ctx context.Context) (bool, error) {
	return f.granted, f.checkErr
}

func (f *fakeCapture) Start(ctx context.Context, sessionID string, take int, sink ports.FragmentSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.sinks == nil {
		f.sinks = make(map[string]ports.FragmentSink)
	}
	f.sinks[sessionID] = sink
	return nil
}

func (f *fakeCapture) Stop(sessionID string, take int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.stoppedTakes = append(f.stoppedTakes, take)
	return nil
}

func (f *fakeCapture) sink(id string) ports.FragmentSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[id]
}

func (f *fakeCapture) takesStopped() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.stoppedTakes...)
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeUploader struct {
	release chan struct{}
	result  models.UploadResult
	err     error
	panics  bool

	calls   atomic.Int32
	mu      sync.Mutex
	ctx     context.Context
	payload []byte
}

func (f *fakeUploader) Upload(ctx context.Context, audio models.AudioObject) (models.UploadResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.ctx = ctx
	f.payload = audio.Bytes()
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.panics {
		panic("connection reset")
	}
	return f.result, f.err
}

type recordingPresenter struct {
	mu     sync.Mutex
	states []models.SessionSnapshot
	saved  []string
}

func (p *recordingPresenter) PublishState(s models.SessionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *recordingPresenter) RecordingSaved(sessionID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, name)
}

func (p *recordingPresenter) savedNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.saved...)
}

func (p *recordingPresenter) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

// ---- harness ----

type harness struct {
	svc     *RecorderService
	capture *fakeCapture
	upload  *fakeUploader
	present *recordingPresenter
	ticks   chan time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		capture: &fakeCapture{granted: true},
		upload:  &fakeUploader{result: models.UploadResult{Transcript: "hello", Size: 42}},
		present: &recordingPresenter{},
		ticks:   make(chan time.Time),
	}
	ticks := func(time.Duration) (<-chan time.Time, func()) { return h.ticks, func() {} }

	h.svc = NewRecorderService(
		h.capture,
		h.upload,
		h.present,
		nil,
		logger.NewZapLogger(zap.NewNop().Sugar()),
		RecorderConfig{Ticks: ticks},
	)
	t.Cleanup(h.svc.Shutdown)
	return h
}

// recorded creates a session that already holds a stopped recording.
func (h *harness) recorded(t *testing.T, fragments ...string) models.SessionSnapshot {
	t.Helper()
	ctx := context.Background()

	snap, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.Rename(ctx, snap.ID, "standup")
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, snap.ID)
	require.NoError(t, err)

	sink := h.capture.sink(snap.ID)
	require.NotNil(t, sink)
	for _, f := range fragments {
		sink([]byte(f))
	}

	snap, err = h.svc.Stop(ctx, snap.ID)
	require.NoError(t, err)
	return snap
}

func (h *harness) waitOutcome(t *testing.T, id string, kind models.OutcomeKind) models.SessionSnapshot {
	t.Helper()
	var snap models.SessionSnapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = h.svc.Get(context.Background(), id)
		return err == nil && snap.Outcome.Kind() == kind
	}, waitFor, pollEvery)
	return snap
}

// ---- tests ----

func TestRecorderCreate(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, models.SessionIdle, snap.State)
	assert.True(t, snap.PermissionGranted)
	assert.Equal(t, models.OutcomeNotStarted, snap.Outcome.Kind())
	assert.Len(t, h.svc.List(context.Background()), 1)
}

func TestRecorderCreatePermissionCheckFails(t *testing.T) {
	h := newHarness(t)
	h.capture.checkErr = errors.New("no device")

	snap, err := h.svc.Create(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.PermissionGranted)

	_, err = h.svc.Rename(context.Background(), snap.ID, "memo")
	require.NoError(t, err)
	_, err = h.svc.Start(context.Background(), snap.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRecorderStartRequiresName(t *testing.T) {
	h := newHarness(t)
	snap, err := h.svc.Create(context.Background())
	require.NoError(t, err)

	snap, err = h.svc.Start(context.Background(), snap.ID)
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.Equal(t, models.SessionIdle, snap.State)
	assert.Nil(t, h.capture.sink(snap.ID))
}

func TestRecorderStartCaptureFailure(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errors.New("device busy")

	snap, err := h.svc.Create(context.Background())
	require.NoError(t, err)
	_, err = h.svc.Rename(context.Background(), snap.ID, "memo")
	require.NoError(t, err)

	snap, err = h.svc.Start(context.Background(), snap.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.Equal(t, models.SessionIdle, snap.State)
	assert.Equal(t, 0, snap.Take)
}

func TestRecorderRecordingFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.svc.Create(ctx)
	require.NoError(t, err)
	id := snap.ID

	_, err = h.svc.Rename(ctx, id, "standup")
	require.NoError(t, err)
	snap, err = h.svc.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionRecording, snap.State)
	assert.Equal(t, 1, snap.Take)

	for i := 0; i < 3; i++ {
		h.ticks <- time.Now()
	}
	require.Eventually(t, func() bool {
		s, _ := h.svc.Get(ctx, id)
		return s.ElapsedSeconds == 3
	}, waitFor, pollEvery)

	sink := h.capture.sink(id)
	sink([]byte("ab"))
	sink([]byte("c"))
	accepted, err := h.svc.AppendFragment(ctx, id, 0, []byte("de"))
	require.NoError(t, err)
	assert.True(t, accepted)

	snap, err = h.svc.Stop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStopped, snap.State)
	assert.Equal(t, 0, snap.ElapsedSeconds)
	assert.True(t, snap.HasAudio)
	assert.Equal(t, 5, snap.AudioSize)

	audio, name, err := h.svc.Audio(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "standup", name)
	assert.Equal(t, []byte("abcde"), audio.Bytes())
	assert.Equal(t, models.DefaultAudioMIMEType, audio.MIMEType())

	assert.Eventually(t, func() bool { return h.capture.stopCount() == 1 }, waitFor, pollEvery)
	assert.Greater(t, h.present.published(), 3)
}

func TestRecorderDiscardsFragmentsAfterStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := h.recorded(t, "x")

	h.capture.sink(snap.ID)([]byte("late"))
	accepted, err := h.svc.AppendFragment(ctx, snap.ID, 1, []byte("late"))
	require.NoError(t, err)
	assert.False(t, accepted)

	audio, _, err := h.svc.Audio(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), audio.Bytes())
}

func TestRecorderStopWhenIdle(t *testing.T) {
	h := newHarness(t)
	snap, err := h.svc.Create(context.Background())
	require.NoError(t, err)

	_, err = h.svc.Stop(context.Background(), snap.ID)
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorderUploadSuccess(t *testing.T) {
	h := newHarness(t)
	snap := h.recorded(t, "aud", "io")

	snap, err := h.svc.Upload(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, snap.Outcome.IsPending())

	snap = h.waitOutcome(t, snap.ID, models.OutcomeSuccess)
	assert.Equal(t, "hello", snap.Outcome.Transcript())
	assert.Equal(t, int64(42), snap.Outcome.SizeBytes())
	assert.Equal(t, []byte("audio"), h.upload.payload)
	assert.EqualValues(t, 1, h.upload.calls.Load())
}

func TestRecorderUploadRejectsConcurrentAttempt(t *testing.T) {
	h := newHarness(t)
	h.upload.release = make(chan struct{})
	snap := h.recorded(t, "a")
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, snap.ID)
	require.NoError(t, err)

	_, err = h.svc.Upload(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrUploadInFlight)

	_, err = h.svc.Start(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrUploadInFlight)

	close(h.upload.release)
	h.waitOutcome(t, snap.ID, models.OutcomeSuccess)
	assert.EqualValues(t, 1, h.upload.calls.Load())
}

func TestRecorderUploadFailure(t *testing.T) {
	h := newHarness(t)
	h.upload.err = &models.UploadError{
		Kind:       models.UploadErrStatus,
		StatusCode: 500,
		Message:    "server responded with status 500: disk full",
	}
	snap := h.recorded(t, "a")

	_, err := h.svc.Upload(context.Background(), snap.ID)
	require.NoError(t, err)

	snap = h.waitOutcome(t, snap.ID, models.OutcomeFailure)
	assert.Contains(t, snap.Outcome.Message(), "disk full")
	assert.Empty(t, snap.Outcome.Transcript())
}

func TestRecorderUploadPanicBecomesFailure(t *testing.T) {
	h := newHarness(t)
	h.upload.panics = true
	snap := h.recorded(t, "a")

	_, err := h.svc.Upload(context.Background(), snap.ID)
	require.NoError(t, err)

	snap = h.waitOutcome(t, snap.ID, models.OutcomeFailure)
	assert.Contains(t, snap.Outcome.Message(), "connection reset")
}

func TestRecorderUploadOutlivesCallerContext(t *testing.T) {
	h := newHarness(t)
	h.upload.release = make(chan struct{})
	snap := h.recorded(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.svc.Upload(ctx, snap.ID)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return h.upload.calls.Load() == 1 }, waitFor, pollEvery)
	h.upload.mu.Lock()
	upCtx := h.upload.ctx
	h.upload.mu.Unlock()
	assert.NoError(t, upCtx.Err())

	close(h.upload.release)
	h.waitOutcome(t, snap.ID, models.OutcomeSuccess)
}

func TestRecorderUploadPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fresh, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.Rename(ctx, fresh.ID, "memo")
	require.NoError(t, err)
	_, err = h.svc.Upload(ctx, fresh.ID)
	assert.ErrorIs(t, err, ErrNoAudio)

	snap := h.recorded(t, "a")
	_, err = h.svc.Rename(ctx, snap.ID, "  ")
	require.NoError(t, err)
	_, err = h.svc.Upload(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrNameRequired)

	assert.EqualValues(t, 0, h.upload.calls.Load())
}

func TestRecorderNewTakeResetsOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := h.recorded(t, "a")

	_, err := h.svc.Upload(ctx, snap.ID)
	require.NoError(t, err)
	h.waitOutcome(t, snap.ID, models.OutcomeSuccess)

	snap, err = h.svc.Start(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotStarted, snap.Outcome.Kind())
	assert.False(t, snap.HasAudio)
	assert.Equal(t, 2, snap.Take)
}

func TestRecorderMarkDownloadedNotifiesOncePerTake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fresh, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.MarkDownloaded(ctx, fresh.ID)
	assert.ErrorIs(t, err, ErrNoAudio)

	snap := h.recorded(t, "a")
	snap, err = h.svc.MarkDownloaded(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, snap.Downloaded)
	_, err = h.svc.MarkDownloaded(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"standup"}, h.present.savedNames())

	_, err = h.svc.Start(ctx, snap.ID)
	require.NoError(t, err)
	_, err = h.svc.Stop(ctx, snap.ID)
	require.NoError(t, err)
	_, err = h.svc.MarkDownloaded(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"standup", "standup"}, h.present.savedNames())
}

func TestRecorderCloseWhileUploading(t *testing.T) {
	h := newHarness(t)
	h.upload.release = make(chan struct{})
	snap := h.recorded(t, "a")
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, snap.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.Close(ctx, snap.ID))
	close(h.upload.release)

	_, err = h.svc.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.svc.Close(ctx, snap.ID), ErrSessionNotFound)
}

func TestRecorderCloseWhileRecordingStopsCapture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.svc.Create(ctx)
	require.NoError(t, err)
	_, err = h.svc.Rename(ctx, snap.ID, "memo")
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, snap.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.Close(ctx, snap.ID))
	assert.Eventually(t, func() bool { return h.capture.stopCount() == 1 }, waitFor, pollEvery)
}

func TestRecorderExpiresIdleSessions(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.IdleTimeout = time.Minute
	ctx := context.Background()

	snap, err := h.svc.Create(ctx)
	require.NoError(t, err)

	h.svc.expireIdle(time.Now())
	_, err = h.svc.Get(ctx, snap.ID)
	require.NoError(t, err)

	h.svc.expireIdle(time.Now().Add(2 * time.Minute))
	_, err = h.svc.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecorderShutdownRefusesNewSessions(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background())
	require.NoError(t, err)

	h.svc.Shutdown()
	assert.Empty(t, h.svc.List(context.Background()))

	_, err = h.svc.Create(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestRecorderStopsCaptureForItsOwnTake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := h.recorded(t, "a")

	_, err := h.svc.Start(ctx, snap.ID)
	require.NoError(t, err)
	_, err = h.svc.Stop(ctx, snap.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.capture.stopCount() == 2 }, waitFor, pollEvery)
	assert.ElementsMatch(t, []int{1, 2}, h.capture.takesStopped())
}

func TestRecorderObserveSeesCurrentState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap := h.recorded(t, "ab")

	var seen models.SessionSnapshot
	require.NoError(t, h.svc.Observe(ctx, snap.ID, func(s models.SessionSnapshot) { seen = s }))
	assert.Equal(t, models.SessionStopped, seen.State)
	assert.Equal(t, 2, seen.AudioSize)

	assert.ErrorIs(t, h.svc.Observe(ctx, "missing", func(models.SessionSnapshot) {}), ErrSessionNotFound)
}
