package clip

import (
	"strings"
	"sync"

	"github.com/hpungsan/reel/internal/errors"
)

// NewClipLabel is the placeholder label shown for freshly added clips.
const NewClipLabel = "New Clip"

// Options configures a Collection.
type Options struct {
	// MaxDurationSeconds is the storyboard ceiling (default 20)
	MaxDurationSeconds float64

	// ClipDurationSeconds is assigned to each new clip (default 5)
	ClipDurationSeconds float64

	// NewID overrides id generation (tests); defaults to NewID
	NewID func() (string, error)
}

// Collection is the ordered storyboard plus the active-clip pointer.
// Insertion order is playback order. All methods are safe for concurrent use.
type Collection struct {
	mu       sync.RWMutex
	clips    []Clip
	activeID string // "" means composing a new clip

	max      float64
	duration float64
	newID    func() (string, error)
}

// NewCollection creates an empty collection.
func NewCollection(opts Options) *Collection {
	if opts.MaxDurationSeconds <= 0 {
		opts.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if opts.ClipDurationSeconds <= 0 {
		opts.ClipDurationSeconds = DefaultDurationSeconds
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	return &Collection{
		max:      opts.MaxDurationSeconds,
		duration: opts.ClipDurationSeconds,
		newID:    opts.NewID,
	}
}

// AddClip appends a new clip and makes it active.
// Fails with CAPACITY_EXCEEDED when the budget has no room for another clip,
// and with VALIDATION_ERROR when scriptText is blank.
func (c *Collection) AddClip(scriptText, movementText string) (Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Admission: room must exist, and the new clip must fit without
	// pushing the total past the ceiling.
	remaining := Remaining(c.clips, c.max)
	if remaining <= Epsilon || c.duration > remaining+Epsilon {
		return Clip{}, errors.NewCapacityExceeded(c.max, Total(c.clips))
	}

	if strings.TrimSpace(scriptText) == "" {
		return Clip{}, errors.NewValidation("script_text", "script text is required")
	}

	id, err := c.newID()
	if err != nil {
		return Clip{}, errors.NewInternal(err)
	}

	clip := Clip{
		ID:              id,
		ScriptText:      scriptText,
		MovementText:    movementText,
		DurationSeconds: c.duration,
		Thumbnail:       PlaceholderThumbnail(NewClipLabel),
	}
	c.clips = append(c.clips, clip)
	c.activeID = id

	return clip, nil
}

// UpdateClip merges patch into the clip with id. ID, duration and ordering
// are never changed. An empty patch is a no-op that still returns the clip.
func (c *Collection) UpdateClip(id string, patch Patch) (Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return Clip{}, errors.NewClipNotFound(id)
	}
	if !patch.IsEmpty() {
		patch.apply(&c.clips[i])
	}
	return c.clips[i], nil
}

// DeleteClip removes the clip with id. If it was active, the first remaining
// clip becomes active, or none if the collection is now empty.
func (c *Collection) DeleteClip(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return errors.NewClipNotFound(id)
	}
	c.clips = append(c.clips[:i], c.clips[i+1:]...)

	if c.activeID == id {
		c.activeID = ""
		if len(c.clips) > 0 {
			c.activeID = c.clips[0].ID
		}
	}
	return nil
}

// SelectActive points the editor at id. An empty id means "compose a new clip".
func (c *Collection) SelectActive(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		c.activeID = ""
		return nil
	}
	if c.indexOf(id) < 0 {
		return errors.NewClipNotFound(id)
	}
	c.activeID = id
	return nil
}

// SetActiveForCompose clears the active clip so the next AddClip composes a new one.
func (c *Collection) SetActiveForCompose() {
	_ = c.SelectActive("")
}

// ActiveID returns the active clip id, or "" while composing.
func (c *Collection) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// Active returns the active clip, if any.
func (c *Collection) Active() (Clip, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(c.activeID); i >= 0 {
		return c.clips[i], true
	}
	return Clip{}, false
}

// Get returns the clip with id.
func (c *Collection) Get(id string) (Clip, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexOf(id)
	if i < 0 {
		return Clip{}, errors.NewClipNotFound(id)
	}
	return c.clips[i], nil
}

// Clips returns a copy of the clips in playback order.
func (c *Collection) Clips() []Clip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Clip(nil), c.clips...)
}

// Len returns the number of clips.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clips)
}

// Budget returns the current duration ledger.
func (c *Collection) Budget() Budget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return BudgetOf(c.clips, c.max)
}

// indexOf must be called with mu held.
func (c *Collection) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.clips {
		if c.clips[i].ID == id {
			return i
		}
	}
	return -1
}
