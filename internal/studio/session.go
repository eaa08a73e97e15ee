package studio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/reel/internal/backend"
	"github.com/hpungsan/reel/internal/channel"
	"github.com/hpungsan/reel/internal/clip"
	"github.com/hpungsan/reel/internal/config"
	"github.com/hpungsan/reel/internal/errors"
	"github.com/hpungsan/reel/internal/job"
	"github.com/hpungsan/reel/internal/ops"
	"github.com/hpungsan/reel/internal/project"
)

// Backend is the subset of the backend client a session drives.
type Backend interface {
	GenerateImage(ctx context.Context, prompt string) error
	GenerateClip(ctx context.Context, clipID string, req backend.ClipRequest) error
	ValidateClip(clipID string, req backend.ClipRequest) error
	StatusURL(clientID string) string
}

// Options configures a Session.
type Options struct {
	Config  *config.Config
	Backend Backend
	Source  channel.Source
	DB      *sql.DB
	Logger  logrus.FieldLogger

	// ClientID identifies this session on the push channel. Defaults to a random UUID.
	ClientID string

	// NewID generates clip and job ids. Defaults to ULIDs.
	NewID func() (string, error)
}

// Session is the composing context: one clip collection, the job slots
// that generate into it, and the store finished projects are saved to.
type Session struct {
	backend    Backend
	adapter    *channel.Adapter
	collection *clip.Collection
	db         *sql.DB
	log        logrus.FieldLogger
	clientID   string
	newID      func() (string, error)

	mu        sync.Mutex
	jobs      map[job.Slot]*job.Job
	avatarURL string
}

// New creates a session with an empty collection.
func New(opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, errors.NewInvalidRequest("backend is required")
	}
	if opts.Source == nil {
		return nil, errors.NewInvalidRequest("event source is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = config.DiscardLogger()
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	newID := opts.NewID
	if newID == nil {
		newID = clip.NewID
	}

	return &Session{
		backend: opts.Backend,
		adapter: channel.NewAdapter(opts.Source, log),
		collection: clip.NewCollection(clip.Options{
			MaxDurationSeconds:  cfg.MaxDurationSeconds,
			ClipDurationSeconds: cfg.ClipDurationSeconds,
			NewID:               newID,
		}),
		db:       opts.DB,
		log:      log,
		clientID: clientID,
		newID:    newID,
		jobs:     make(map[job.Slot]*job.Job),
	}, nil
}

// ClientID returns the push-channel client id.
func (s *Session) ClientID() string { return s.clientID }

// Collection exposes the clip collection for read access.
func (s *Session) Collection() *clip.Collection { return s.collection }

// Budget returns the current duration budget.
func (s *Session) Budget() clip.Budget { return s.collection.Budget() }

// AvatarURL returns the most recent successfully generated avatar, or "".
func (s *Session) AvatarURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatarURL
}

// AddClip appends a clip and makes it active.
func (s *Session) AddClip(script, movement string) (clip.Clip, error) {
	c, err := s.collection.AddClip(script, movement)
	if err != nil {
		return clip.Clip{}, err
	}
	s.log.WithField("clip_id", c.ID).Debug("clip added")
	s.persistActive()
	return c, nil
}

// UpdateClip merges patch into a clip.
func (s *Session) UpdateClip(id string, patch clip.Patch) (clip.Clip, error) {
	c, err := s.collection.UpdateClip(id, patch)
	if err != nil {
		s.logNotFound(err, id, "update")
		return clip.Clip{}, err
	}
	if !patch.IsEmpty() {
		s.log.WithField("clip_id", id).Debug("clip updated")
	}
	return c, nil
}

// DeleteClip removes a clip. An in-flight generation targeting it is cancelled first.
func (s *Session) DeleteClip(id string) error {
	if _, err := s.collection.Get(id); err != nil {
		s.logNotFound(err, id, "delete")
		return err
	}

	if j := s.adapter.Active(job.SlotClip); j != nil && j.TargetClipID() == id {
		s.log.WithFields(logrus.Fields{"clip_id": id, "job_id": j.ID()}).Info("cancelling generation for deleted clip")
		s.adapter.Close(job.SlotClip, job.ReasonClipDeleted)
	}

	if err := s.collection.DeleteClip(id); err != nil {
		s.logNotFound(err, id, "delete")
		return err
	}
	s.persistActive()
	return nil
}

// SelectActive moves the editing focus to id.
func (s *Session) SelectActive(id string) error {
	if err := s.collection.SelectActive(id); err != nil {
		s.logNotFound(err, id, "select")
		return err
	}
	s.persistActive()
	return nil
}

// Compose clears the active clip so the editor composes a new one.
func (s *Session) Compose() {
	s.collection.SetActiveForCompose()
	s.persistActive()
}

// GenerateAvatar starts an avatar image job. The returned job keeps running
// in the background; poll it or wait on Done.
func (s *Session) GenerateAvatar(ctx context.Context, prompt string) (*job.Job, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.NewValidation("prompt", "prompt is required")
	}

	j, err := s.newJob(job.SlotAvatar, "")
	if err != nil {
		return nil, err
	}
	j.OnSettled(func(snap job.Snapshot) {
		if snap.State != job.StateSucceeded {
			return
		}
		s.mu.Lock()
		s.avatarURL = snap.Result
		s.mu.Unlock()
	})

	if err := s.start(ctx, j, validateAvatarResult, func(ctx context.Context) error {
		return s.backend.GenerateImage(ctx, prompt)
	}); err != nil {
		return j, err
	}
	return j, nil
}

// GenerateClip starts video generation for a clip. On success the clip's
// media link is set, provided the clip still exists.
func (s *Session) GenerateClip(ctx context.Context, clipID string) (*job.Job, error) {
	c, err := s.collection.Get(clipID)
	if err != nil {
		s.logNotFound(err, clipID, "generate")
		return nil, err
	}
	req := backend.ClipRequest{Script: c.ScriptText, Movement: c.MovementText}
	if err := s.backend.ValidateClip(c.ID, req); err != nil {
		return nil, err
	}

	j, err := s.newJob(job.SlotClip, c.ID)
	if err != nil {
		return nil, err
	}
	logger := s.log.WithFields(logrus.Fields{"clip_id": c.ID, "job_id": j.ID()})
	j.OnSettled(func(snap job.Snapshot) {
		if snap.State != job.StateSucceeded {
			logger.WithField("error_code", snap.ErrorCode).Info("clip generation did not succeed")
			return
		}
		link := snap.Result
		if _, err := s.collection.UpdateClip(c.ID, clip.Patch{MediaLink: &link}); err != nil {
			logger.WithError(err).Warn("generated clip no longer exists")
			return
		}
		logger.Info("clip media attached")
	})

	if err := s.start(ctx, j, validateMediaURL, func(ctx context.Context) error {
		return s.backend.GenerateClip(ctx, c.ID, req)
	}); err != nil {
		return j, err
	}
	return j, nil
}

// start opens the job's channel, then sends the triggering request.
// A failed request fails the job unless a channel event settled it first.
func (s *Session) start(ctx context.Context, j *job.Job, validate func(string) error, trigger func(context.Context) error) error {
	s.mu.Lock()
	s.jobs[j.Slot()] = j
	s.mu.Unlock()

	err := s.adapter.Open(ctx, channel.OpenRequest{
		Slot:     j.Slot(),
		Job:      j,
		Endpoint: s.backend.StatusURL(s.clientID),
		Validate: validate,
	})
	if err != nil {
		return err
	}

	if err := trigger(ctx); err != nil {
		code := errors.CodeOf(err)
		if code != errors.ErrConnection {
			code = errors.ErrGenerationFailed
		}
		s.log.WithFields(logrus.Fields{"slot": j.Slot(), "job_id": j.ID()}).WithError(err).Warn("generation request failed")
		j.OnError(code, errors.MessageOf(err))
		return err
	}
	return nil
}

// Job returns a snapshot of the latest job for slot.
func (s *Session) Job(slot job.Slot) (job.Snapshot, bool) {
	s.mu.Lock()
	j := s.jobs[slot]
	s.mu.Unlock()
	if j == nil {
		return job.Snapshot{}, false
	}
	return j.Snapshot(), true
}

// Cancel cancels the live job in slot, if any.
func (s *Session) Cancel(slot job.Slot) {
	s.adapter.Close(slot, job.ReasonCancelled)
}

// Leave cancels every live job, as when leaving the composing view.
func (s *Session) Leave() {
	s.adapter.Shutdown(job.ReasonNavigated)
}

// FinishOutput is the result of Finish.
type FinishOutput struct {
	Project *project.Project `json:"project"`
	Saved   *ops.SaveOutput  `json:"saved"`
}

// Finish assembles the collection into a project, saves it to the front of
// the project list, and records it as the current project.
func (s *Session) Finish(ctx context.Context, title string) (*FinishOutput, error) {
	if s.db == nil {
		return nil, errors.NewInternal(fmt.Errorf("no project store configured"))
	}

	id, err := s.newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	p, err := project.Assemble(project.AssembleInput{
		ID:    id,
		Title: title,
		Clips: s.collection.Clips(),
	})
	if err != nil {
		return nil, err
	}

	saved, err := ops.Save(ctx, s.db, ops.SaveInput{Project: p})
	if err != nil {
		return nil, err
	}
	if _, err := ops.SetCurrent(ctx, s.db, ops.SetCurrentInput{ProjectID: &p.ID}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"project_id": p.ID, "clips": len(p.Clips)}).Info("project saved")
	return &FinishOutput{Project: p, Saved: saved}, nil
}

func (s *Session) newJob(slot job.Slot, clipID string) (*job.Job, error) {
	id, err := s.newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return job.New(id, slot, clipID), nil
}

// persistActive records the active clip id. Failures are logged, not returned.
func (s *Session) persistActive() {
	if s.db == nil {
		return
	}
	active := s.collection.ActiveID()
	if _, err := ops.SetCurrent(context.Background(), s.db, ops.SetCurrentInput{ClipID: &active}); err != nil {
		s.log.WithError(err).Warn("failed to persist current clip")
	}
}

func (s *Session) logNotFound(err error, id, action string) {
	if errors.Is(err, errors.ErrClipNotFound) {
		s.log.WithFields(logrus.Fields{"clip_id": id, "action": action}).Warn("clip not found")
	}
}

func validateAvatarResult(result string) error {
	if strings.TrimSpace(result) == "" {
		return fmt.Errorf("completion carried no avatar")
	}
	return nil
}

func validateMediaURL(result string) error {
	if !clip.IsMediaURL(result) {
		return fmt.Errorf("completion result is not a media URL: %q", result)
	}
	return nil
}
