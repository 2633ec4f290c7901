package domain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
	"github.com/google/uuid"
)

// TickSource produces the periodic recording tick. The returned func stops it.
type TickSource func(interval time.Duration) (<-chan time.Time, func())

func RealTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

type RecorderConfig struct {
	MIMEType        string
	TickInterval    time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	Ticks           TickSource
}

type RecorderService struct {
	capture  ports.CaptureFacility
	uploader ports.Uploader
	present  ports.Presenter
	metrics  ports.Metrics
	log      *logger.ZapLogger
	cfg      RecorderConfig

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRecorderService(
	capture ports.CaptureFacility,
	uploader ports.Uploader,
	present ports.Presenter,
	metrics ports.Metrics,
	log *logger.ZapLogger,
	cfg RecorderConfig,
) *RecorderService {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Ticks == nil {
		cfg.Ticks = RealTicks
	}
	if present == nil {
		present = nopPresenter{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RecorderService{
		capture:  capture,
		uploader: uploader,
		present:  present,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
		sessions: make(map[string]*session),
	}

	if cfg.IdleTimeout > 0 {
		go r.cleanupLoop()
	} else {
		close(r.cleanup)
	}
	return r
}

var _ ports.SessionService = (*RecorderService)(nil)

// ========================================================================
// SESSION LIFECYCLE
// ========================================================================

func (r *RecorderService) Create(ctx context.Context) (models.SessionSnapshot, error) {
	if r.ctx.Err() != nil {
		return models.SessionSnapshot{}, ErrSessionClosed
	}

	granted, err := r.capture.CheckPermission(ctx)
	if err != nil {
		r.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "capture permission check failed",
			Error:   err,
		})
		granted = false
	}

	s := &session{
		id:      uuid.NewString(),
		owner:   r,
		capture: NewCaptureSession(r.cfg.MIMEType),
		upload:  NewUploadOrchestrator(),
		events:  make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.capture.SetPermission(granted)
	s.touch()

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	go s.loop()

	r.metrics.SessionOpened()
	r.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "session created",
		Fields:  map[string]any{"sessionID": s.id, "permission": granted},
	})

	return call(ctx, s, func() (models.SessionSnapshot, error) {
		s.publish()
		return s.snapshot(), nil
	})
}

func (r *RecorderService) Get(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		return s.snapshot(), nil
	})
}

func (r *RecorderService) Observe(ctx context.Context, id string, fn func(models.SessionSnapshot)) error {
	s, err := r.session(id)
	if err != nil {
		return err
	}
	_, err = call(ctx, s, func() (struct{}, error) {
		fn(s.snapshot())
		return struct{}{}, nil
	})
	return err
}

func (r *RecorderService) List(ctx context.Context) []models.SessionSnapshot {
	r.mu.RLock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	out := make([]models.SessionSnapshot, 0, len(all))
	for _, s := range all {
		snap, err := call(ctx, s, func() (models.SessionSnapshot, error) {
			return s.snapshot(), nil
		})
		if err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// Close tears the session down, as when the hosting UI goes away.
func (r *RecorderService) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.close()
	r.metrics.SessionClosed()
	r.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "session closed",
		Fields:  map[string]any{"sessionID": id},
	})
	return nil
}

// Shutdown closes every session and stops background routines.
func (r *RecorderService) Shutdown() {
	r.cancel()
	<-r.cleanup

	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Close(context.Background(), id)
	}
}

// ========================================================================
// RECORDING
// ========================================================================

func (r *RecorderService) Rename(ctx context.Context, id, name string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		s.capture.SetName(name)
		s.publish()
		return s.snapshot(), nil
	})
}

func (r *RecorderService) SetPermission(ctx context.Context, id string, granted bool) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		s.capture.SetPermission(granted)
		if !granted {
			r.log.Log(logger.LogEntry{
				Level:   "warn",
				Message: "capture permission not granted",
				Fields:  map[string]any{"sessionID": s.id},
			})
		}
		s.publish()
		return s.snapshot(), nil
	})
}

func (r *RecorderService) Start(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		if err := s.start(); err != nil {
			return s.snapshot(), err
		}
		return s.snapshot(), nil
	})
}

func (r *RecorderService) Stop(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		if err := s.stop(); err != nil {
			return s.snapshot(), err
		}
		return s.snapshot(), nil
	})
}

func (r *RecorderService) AppendFragment(ctx context.Context, id string, take int, fragment []byte) (bool, error) {
	s, err := r.session(id)
	if err != nil {
		return false, err
	}
	return call(ctx, s, func() (bool, error) {
		if take <= 0 {
			take = s.capture.Take()
		}
		return s.appendFragment(take, fragment), nil
	})
}

// ========================================================================
// RESULT
// ========================================================================

func (r *RecorderService) Audio(ctx context.Context, id string) (models.AudioObject, string, error) {
	s, err := r.session(id)
	if err != nil {
		return models.AudioObject{}, "", err
	}

	type audioWithName struct {
		audio models.AudioObject
		name  string
	}
	res, err := call(ctx, s, func() (audioWithName, error) {
		a := s.capture.Audio()
		if a == nil {
			return audioWithName{}, ErrNoAudio
		}
		return audioWithName{audio: *a, name: s.capture.Name()}, nil
	})
	return res.audio, res.name, err
}

func (r *RecorderService) MarkDownloaded(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		if s.capture.Audio() == nil {
			return s.snapshot(), ErrNoAudio
		}
		s.downloaded = true
		if s.savedTake != s.capture.Take() {
			s.savedTake = s.capture.Take()
			r.present.RecordingSaved(s.id, s.capture.Name())
		}
		s.publish()
		return s.snapshot(), nil
	})
}

// Upload begins an upload of the current recording and returns at once with
// the Pending snapshot. The call itself cannot be aborted once started.
func (r *RecorderService) Upload(ctx context.Context, id string) (models.SessionSnapshot, error) {
	s, err := r.session(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return call(ctx, s, func() (models.SessionSnapshot, error) {
		if err := s.beginUpload(context.WithoutCancel(ctx)); err != nil {
			return s.snapshot(), err
		}
		return s.snapshot(), nil
	})
}

// ========================================================================
// INTERNALS
// ========================================================================

func (r *RecorderService) session(id string) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *RecorderService) cleanupLoop() {
	defer close(r.cleanup)

	interval := r.cfg.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.expireIdle(time.Now())
		}
	}
}

func (r *RecorderService) expireIdle(now time.Time) {
	var expired []string

	r.mu.RLock()
	for id, s := range r.sessions {
		if now.Sub(s.lastActivity()) > r.cfg.IdleTimeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "session expired",
			Fields:  map[string]any{"sessionID": id, "idleTimeout": r.cfg.IdleTimeout.String()},
		})
		_ = r.Close(context.Background(), id)
	}
}

// ------------------------------------------------------------------------
// session: every field below is owned by loop()
// ------------------------------------------------------------------------

type session struct {
	id    string
	owner *RecorderService

	capture    *CaptureSession
	upload     *UploadOrchestrator
	downloaded bool
	savedTake  int
	stopTick   func()

	activity atomic.Int64

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) loop() {
	defer close(s.done)

	for {
		select {
		case ev := <-s.events:
			s.touch()
			ev()
		case <-s.quit:
			s.teardown()
			return
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// post queues an event from outside the loop. It reports false once the
// session is gone.
func (s *session) post(ev func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) touch() { s.activity.Store(time.Now().UnixNano()) }

func (s *session) lastActivity() time.Time { return time.Unix(0, s.activity.Load()) }

func (s *session) snapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:                s.id,
		Name:              s.capture.Name(),
		State:             s.capture.State(),
		ElapsedSeconds:    s.capture.Elapsed(),
		Take:              s.capture.Take(),
		PermissionGranted: s.capture.Permission(),
		Outcome:           s.upload.Outcome(),
		Downloaded:        s.downloaded,
	}
	if a := s.capture.Audio(); a != nil {
		snap.HasAudio = true
		snap.AudioSize = a.Len()
		snap.AudioMIMEType = a.MIMEType()
	}
	return snap
}

func (s *session) publish() { s.owner.present.PublishState(s.snapshot()) }

func (s *session) start() error {
	r := s.owner

	if s.upload.InFlight() {
		return ErrUploadInFlight
	}
	if err := s.capture.CanStart(); err != nil {
		return err
	}

	take := s.capture.Take() + 1
	sink := func(fragment []byte) {
		buf := make([]byte, len(fragment))
		copy(buf, fragment)
		if !s.post(func() { s.appendFragment(take, buf) }) {
			r.metrics.FragmentReceived(false)
		}
	}
	if err := r.capture.Start(r.ctx, s.id, take, sink); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	if _, err := s.capture.Start(); err != nil {
		go r.capture.Stop(s.id, take)
		return err
	}
	s.upload.Reset()
	s.startTicks(take)

	r.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "recording started",
		Fields:  map[string]any{"sessionID": s.id, "take": take, "name": s.capture.Name()},
	})
	s.publish()
	return nil
}

func (s *session) startTicks(take int) {
	ch, stop := s.owner.cfg.Ticks(s.owner.cfg.TickInterval)
	quit := make(chan struct{})

	var once sync.Once
	s.stopTick = func() {
		once.Do(func() {
			close(quit)
			stop()
		})
	}

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-s.done:
				return
			case <-ch:
				s.post(func() {
					if s.capture.Tick(take) {
						s.publish()
					}
				})
			}
		}
	}()
}

func (s *session) stop() error {
	r := s.owner

	if s.capture.State() != models.SessionRecording {
		return ErrNotRecording
	}
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}

	take := s.capture.Take()
	audio, err := s.capture.Stop()
	if err != nil {
		return err
	}

	go func(id string) {
		if err := r.capture.Stop(id, take); err != nil {
			r.log.Log(logger.LogEntry{
				Level:   "warn",
				Message: "stop capture failed",
				Fields:  map[string]any{"sessionID": id},
				Error:   err,
			})
		}
	}(s.id)

	r.metrics.RecordingCompleted(audio.Len())
	r.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "recording stopped",
		Fields:  map[string]any{"sessionID": s.id, "take": take, "bytes": audio.Len()},
	})
	s.publish()
	return nil
}

func (s *session) appendFragment(take int, fragment []byte) bool {
	ok := s.capture.Append(take, fragment)
	s.owner.metrics.FragmentReceived(ok)
	if !ok {
		s.owner.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "fragment discarded",
			Fields: map[string]any{
				"sessionID":   s.id,
				"take":        take,
				"currentTake": s.capture.Take(),
				"state":       s.capture.State().String(),
				"bytes":       len(fragment),
			},
		})
	}
	return ok
}

func (s *session) beginUpload(ctx context.Context) error {
	r := s.owner

	if !s.capture.HasName() {
		return ErrNameRequired
	}
	audio := s.capture.Audio()
	if audio == nil {
		return ErrNoAudio
	}

	attempt, err := s.upload.Begin()
	if err != nil {
		return err
	}
	r.metrics.UploadStarted()
	s.publish()

	go s.runUpload(ctx, attempt, *audio)
	return nil
}

func (s *session) runUpload(ctx context.Context, attempt int, audio models.AudioObject) {
	r := s.owner
	start := time.Now()

	res, err := func() (res models.UploadResult, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("upload aborted: %v", p)
			}
		}()
		return r.uploader.Upload(ctx, audio)
	}()
	dur := time.Since(start)

	posted := s.post(func() {
		if err != nil {
			if !s.upload.Reject(attempt, err) {
				return
			}
			r.log.Log(logger.LogEntry{
				Level:   "error",
				Message: "upload failed",
				Fields:  map[string]any{"sessionID": s.id, "attempt": attempt, "dur": dur.String()},
				Error:   err,
			})
		} else {
			if !s.upload.Resolve(attempt, res) {
				return
			}
			r.log.Log(logger.LogEntry{
				Level:   "info",
				Message: "upload succeeded",
				Fields: map[string]any{
					"sessionID": s.id,
					"attempt":   attempt,
					"size":      res.Size,
					"dur":       dur.String(),
				},
			})
		}
		s.publish()
	})

	if err != nil {
		r.metrics.UploadFailed(uploadErrorKind(err), dur)
	} else {
		r.metrics.UploadSucceeded(dur)
	}
	if !posted {
		r.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "upload finished after session closed",
			Fields:  map[string]any{"sessionID": s.id, "attempt": attempt},
		})
	}
}

func (s *session) teardown() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	if s.capture.State() != models.SessionRecording {
		return
	}

	// the facility may still be delivering into this loop, so never wait on it here
	r := s.owner
	take := s.capture.Take()
	go func(id string) {
		if err := r.capture.Stop(id, take); err != nil {
			r.log.Log(logger.LogEntry{
				Level:   "warn",
				Message: "stop capture on close failed",
				Fields:  map[string]any{"sessionID": id},
				Error:   err,
			})
		}
	}(s.id)
}

type result[T any] struct {
	val T
	err error
}

// call runs fn on the session loop and waits for its result.
func call[T any](ctx context.Context, s *session, fn func() (T, error)) (T, error) {
	var zero T
	reply := make(chan result[T], 1)

	ev := func() {
		v, err := fn()
		reply <- result[T]{val: v, err: err}
	}

	select {
	case s.events <- ev:
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.val, res.err
	case <-s.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
