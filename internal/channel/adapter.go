package channel

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/job"
)

// OpenRequest describes a channel to open for a job.
type OpenRequest struct {
	Slot     job.Slot
	Job      *job.Job
	Endpoint string

	// Validate, if set, checks a completion result before the job succeeds.
	// A rejected result fails the job with GENERATION_FAILED.
	Validate func(result string) error
}

// Adapter translates status channel events into job transitions.
// It keeps at most one live channel per slot.
type Adapter struct {
	source Source
	log    logrus.FieldLogger

	mu    sync.Mutex
	links map[job.Slot]*link
	wg    sync.WaitGroup
}

type link struct {
	adapter *Adapter
	slot    job.Slot
	job     *job.Job
	cancel  context.CancelFunc

	mu        sync.Mutex
	stream    Stream
	closeOnce sync.Once
}

// NewAdapter creates an adapter dialing through source.
func NewAdapter(source Source, log logrus.FieldLogger) *Adapter {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Adapter{
		source: source,
		log:    log,
		links:  make(map[job.Slot]*link),
	}
}

// Open starts req.Job and connects its channel. A live job in the same slot
// is cancelled and its channel closed first. Open returns once the channel is
// connected; events are then consumed in the background until the job is terminal.
func (a *Adapter) Open(ctx context.Context, req OpenRequest) error {
	if req.Job == nil {
		return errors.NewInvalidRequest("job is required")
	}
	if req.Slot == "" {
		req.Slot = req.Job.Slot()
	}

	if err := req.Job.Start(); err != nil {
		return err
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &link{adapter: a, slot: req.Slot, job: req.Job, cancel: cancel}
	req.Job.SetCloser(l.close)

	a.mu.Lock()
	prior := a.links[req.Slot]
	a.links[req.Slot] = l
	a.mu.Unlock()

	if prior != nil {
		a.log.WithFields(logrus.Fields{"slot": req.Slot, "job_id": prior.job.ID()}).Info("superseding live job")
		prior.job.Cancel(job.ReasonSuperseded)
		prior.close()
	}

	logger := a.log.WithFields(logrus.Fields{"slot": req.Slot, "job_id": req.Job.ID()})
	logger.WithField("endpoint", req.Endpoint).Debug("dialing status channel")

	stream, err := a.source.Dial(ctx, req.Endpoint)
	if err != nil {
		logger.WithError(err).Warn("status channel dial failed")
		connErr := errors.NewConnection(err)
		req.Job.OnError(errors.ErrConnection, connErr.Message)
		return connErr
	}

	if !l.attach(stream) {
		// cancelled while dialing
		return nil
	}
	req.Job.OnOpen()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.readLoop(linkCtx, l, stream, req.Validate, logger)
	}()
	return nil
}

func (a *Adapter) readLoop(ctx context.Context, l *link, stream Stream, validate func(string) error, logger logrus.FieldLogger) {
	j := l.job
	defer l.close()

	for {
		raw, err := stream.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, stderrors.Is(err, ErrClosed):
				j.OnClosed()
			default:
				logger.WithError(err).Warn("status channel read failed")
				j.OnError(errors.ErrConnection, "connection error")
			}
			return
		}

		ev := Decode(raw)
		switch ev.Kind {
		case KindProgress:
			j.OnProgress(ev.Value, ev.Max)
		case KindStatus:
			j.OnStatus(ev.Message)
		case KindCompletion:
			if validate != nil {
				if verr := validate(ev.Result); verr != nil {
					logger.WithError(verr).Warn("completion result rejected")
					j.OnError(errors.ErrGenerationFailed, verr.Error())
					return
				}
			}
			j.OnSuccess(ev.Result)
		case KindError:
			j.OnError(errors.ErrGenerationFailed, ev.Message)
		default:
			logger.WithError(ev.Err).WithField("raw", string(ev.Raw)).Warn("ignoring unrecognized channel message")
		}

		if j.State().Terminal() {
			return
		}
	}
}

// Close cancels the live job in slot, if any, and closes its channel.
func (a *Adapter) Close(slot job.Slot, reason string) {
	a.mu.Lock()
	l := a.links[slot]
	a.mu.Unlock()

	if l == nil {
		return
	}
	l.job.Cancel(reason)
	l.close()
}

// Active returns the non-terminal job occupying slot, or nil.
func (a *Adapter) Active(slot job.Slot) *job.Job {
	a.mu.Lock()
	l := a.links[slot]
	a.mu.Unlock()

	if l == nil || l.job.State().Terminal() {
		return nil
	}
	return l.job
}

// Shutdown cancels every live job and waits for read loops to exit.
func (a *Adapter) Shutdown(reason string) {
	a.mu.Lock()
	slots := make([]job.Slot, 0, len(a.links))
	for slot := range a.links {
		slots = append(slots, slot)
	}
	a.mu.Unlock()

	for _, slot := range slots {
		a.Close(slot, reason)
	}
	a.wg.Wait()
}

// attach records the dialed stream. It returns false, closing stream, if the
// link was closed while dialing.
func (l *link) attach(stream Stream) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.job.State().Terminal() {
		_ = stream.Close()
		return false
	}
	l.stream = stream
	return true
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		l.cancel()

		l.mu.Lock()
		stream := l.stream
		l.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}

		a := l.adapter
		a.mu.Lock()
		if a.links[l.slot] == l {
			delete(a.links, l.slot)
		}
		a.mu.Unlock()
	})
}
