// Package enroll implements the enrollment session that turns several
// captures of one person into a single averaged gallery identity.
//
// A session moves Idle -> CollectingName -> Accumulating -> Committed -> Idle.
// Committed is transient: the capture that completes the last shot writes the
// average into the gallery and the session is immediately Idle again.
package enroll

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/gallery"
)

var (
	// ErrEmptyName is returned by BindName for names that are empty after
	// normalization.
	ErrEmptyName = gallery.ErrEmptyName
	// ErrSessionActive is returned by Begin when a session is already running.
	ErrSessionActive = errors.New("enrollment session already active")
	// ErrNotCollectingName is returned by BindName outside CollectingName.
	ErrNotCollectingName = errors.New("enrollment session is not waiting for a name")
)

type State int

const (
	StateIdle State = iota
	StateCollectingName
	StateAccumulating
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollectingName:
		return "collecting_name"
	case StateAccumulating:
		return "accumulating"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText makes State readable in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateCommitted; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown enrollment state %q", b)
}

type Outcome string

const (
	// OutcomeAccumulated means the shot was added and more are needed.
	OutcomeAccumulated Outcome = "accumulated"
	// OutcomeCommitted means the final shot was added and the average stored.
	OutcomeCommitted Outcome = "committed"
	// OutcomeIgnored means the capture violated the protocol; nothing changed.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFailed means the gallery rejected the average; the session was
	// discarded.
	OutcomeFailed Outcome = "failed"
)

// Reasons reported with OutcomeIgnored.
const (
	ReasonNoFace        = "no faces found"
	ReasonMultipleFaces = "more than one face in frame"
	ReasonFaceUnusable  = "face not usable"
	ReasonNoName        = "name not set"
	ReasonNotEnrolling  = "no enrollment session"
)

// Result describes what a Capture did.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Name    string  `json:"name,omitempty"`
	Shot    int     `json:"shot"`
	Shots   int     `json:"shots"`
	Err     error   `json:"-"`
}

// Config controls a session.
type Config struct {
	// Shots is the number of captures averaged into one identity.
	Shots int
	// Dim is the expected embedding length while the gallery is still empty.
	// Zero accepts whatever the first capture provides.
	Dim int
}

// Status is a point-in-time view of the session.
type Status struct {
	ID    string `json:"id,omitempty"`
	State State  `json:"state"`
	Name  string `json:"name,omitempty"`
	Shot  int    `json:"shot"`
	Shots int    `json:"shots"`
}

// Session is a single enrollment state machine bound to one gallery. It is
// safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	gallery *gallery.Gallery
	shots   int
	dim     int

	state State
	id    string
	name  string
	count int
	sum   []float64
}

func NewSession(g *gallery.Gallery, cfg Config) *Session {
	shots := cfg.Shots
	if shots <= 0 {
		shots = constants.DefaultEnrollmentShots
	}
	return &Session{gallery: g, shots: shots, dim: cfg.Dim}
}

// Begin starts collecting a name for a new identity.
func (s *Session) Begin() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return "", ErrSessionActive
	}
	s.reset()
	s.id = uuid.NewString()
	s.state = StateCollectingName
	return s.id, nil
}

// BindName sets the identity name and starts accumulating shots. Empty
// names are rejected and the session stays in CollectingName.
func (s *Session) BindName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCollectingName {
		return ErrNotCollectingName
	}
	key := gallery.NormalizeName(name)
	if key == "" {
		return ErrEmptyName
	}

	s.name = key
	s.count = 0
	s.sum = nil
	s.state = StateAccumulating
	return nil
}

// Capture feeds the embeddings of every face detected in one frame, with a
// nil entry for a face that could not be embedded. Exactly one usable face is
// required. The final shot stores sum/Shots in the gallery.
func (s *Session) Capture(faces []gallery.Embedding) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAccumulating:
	case StateCollectingName:
		return s.ignored(ReasonNoName)
	default:
		return s.ignored(ReasonNotEnrolling)
	}

	switch len(faces) {
	case 0:
		return s.ignored(ReasonNoFace)
	case 1:
	default:
		return s.ignored(ReasonMultipleFaces)
	}

	emb := faces[0]
	if len(emb) == 0 {
		return s.ignored(ReasonFaceUnusable)
	}
	if err := emb.Validate(s.expectedDim()); err != nil {
		r := s.ignored(err.Error())
		r.Err = err
		return r
	}

	if s.sum == nil {
		s.sum = make([]float64, len(emb))
	}
	shot := make([]float64, len(emb))
	for i, v := range emb {
		shot[i] = float64(v)
	}
	floats.Add(s.sum, shot)
	s.count++

	if s.count < s.shots {
		return Result{Outcome: OutcomeAccumulated, Name: s.name, Shot: s.count, Shots: s.shots}
	}

	s.state = StateCommitted
	name := s.name
	err := s.gallery.Upsert(name, s.average())
	s.reset()

	if err != nil {
		return Result{
			Outcome: OutcomeFailed,
			Reason:  err.Error(),
			Name:    name,
			Shot:    s.shots,
			Shots:   s.shots,
			Err:     fmt.Errorf("committing %q: %w", name, err),
		}
	}
	return Result{Outcome: OutcomeCommitted, Name: name, Shot: s.shots, Shots: s.shots}
}

// Abandon discards any in-progress session. The gallery is not touched.
// It reports whether there was anything to discard.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.state != StateIdle
	s.reset()
	return active
}

// Status returns the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{ID: s.id, State: s.state, Name: s.name, Shot: s.count, Shots: s.shots}
}

// Shots returns the number of captures per identity.
func (s *Session) Shots() int {
	return s.shots
}

func (s *Session) expectedDim() int {
	if len(s.sum) > 0 {
		return len(s.sum)
	}
	if d := s.gallery.Dim(); d > 0 {
		return d
	}
	return s.dim
}

func (s *Session) average() gallery.Embedding {
	avg := make([]float64, len(s.sum))
	copy(avg, s.sum)
	floats.Scale(1/float64(s.shots), avg)

	out := make(gallery.Embedding, len(avg))
	for i, v := range avg {
		out[i] = float32(v)
	}
	return out
}

func (s *Session) ignored(reason string) Result {
	return Result{Outcome: OutcomeIgnored, Reason: reason, Name: s.name, Shot: s.count, Shots: s.shots}
}

func (s *Session) reset() {
	s.state = StateIdle
	s.id = ""
	s.name = ""
	s.count = 0
	s.sum = nil
}
