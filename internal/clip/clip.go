package clip

import (
	"crypto/rand"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultDurationSeconds is the duration assigned to a new clip.
const DefaultDurationSeconds = 5.0

// DefaultMaxDurationSeconds is the storyboard ceiling when none is configured.
const DefaultMaxDurationSeconds = 20.0

// Clip is one timed segment of the output video.
type Clip struct {
	// ID is a ULID assigned at creation and stable for the clip's lifetime
	ID string `json:"id"`

	// ScriptText is the speech content of the clip
	ScriptText string `json:"text"`

	// MovementText describes avatar motion or product interaction (optional)
	MovementText string `json:"movement,omitempty"`

	// DurationSeconds is assigned at creation; it is not edited by Update
	DurationSeconds float64 `json:"durationSeconds"`

	// Thumbnail is a data URI placeholder until generation attaches a preview
	Thumbnail string `json:"thumbnail"`

	// MediaLink is the rendered video URL, empty until generation succeeds
	MediaLink string `json:"link,omitempty"`
}

// HasMedia reports whether a rendered asset is attached.
func (c Clip) HasMedia() bool {
	return c.MediaLink != ""
}

// Patch holds the editable fields of a clip. Nil fields are left unchanged.
type Patch struct {
	ScriptText   *string
	MovementText *string
	Thumbnail    *string
	MediaLink    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.ScriptText == nil && p.MovementText == nil && p.Thumbnail == nil && p.MediaLink == nil
}

// apply merges p into c. ID and DurationSeconds are never touched.
func (p Patch) apply(c *Clip) {
	if p.ScriptText != nil {
		c.ScriptText = *p.ScriptText
	}
	if p.MovementText != nil {
		c.MovementText = *p.MovementText
	}
	if p.Thumbnail != nil {
		c.Thumbnail = *p.Thumbnail
	}
	if p.MediaLink != nil {
		c.MediaLink = *p.MediaLink
	}
}

// NewID generates a new ULID for a clip, job or project.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// PlaceholderThumbnail returns an SVG data URI showing label on a dark tile.
func PlaceholderThumbnail(label string) string {
	svg := "<svg xmlns='http://www.w3.org/2000/svg' width='100' height='100' viewBox='0 0 100 100'>" +
		"<rect width='100' height='100' fill='#333'/>" +
		"<text x='50' y='50' font-family='Arial' font-size='12' fill='white' text-anchor='middle' dominant-baseline='middle'>" +
		escapeSVGText(label) +
		"</text></svg>"
	return "data:image/svg+xml," + url.PathEscape(svg)
}

func escapeSVGText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "'", "&apos;")
	return r.Replace(s)
}

// IsMediaURL reports whether s is an absolute http(s) URL.
func IsMediaURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
