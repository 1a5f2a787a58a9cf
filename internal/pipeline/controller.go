package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/metrics"
)

var ErrNotEnrolling = errors.New("not in enrollment mode")

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	Matcher    *facematch.Matcher
	Enrollment enroll.Config
	// Store receives the gallery on Quit and, with AutoSave, after every
	// committed enrollment. Nil disables persistence.
	Store    database.GalleryStore
	AutoSave bool
	// StoreUnread marks a store whose contents could not be loaded. Saves
	// are skipped until the gallery changes.
	StoreUnread bool
}

// Status is a point-in-time view of the controller.
type Status struct {
	Mode       Mode          `json:"mode"`
	Enrollment enroll.Status `json:"enrollment"`
	Identities int           `json:"identities"`
	Dim        int           `json:"dim"`
}

// Controller is the control surface of the host loop and the HTTP API. It
// owns the current mode, the enrollment session and the faces of the most
// recently processed frame.
type Controller struct {
	processor *Processor
	gallery   *gallery.Gallery
	matcher   *facematch.Matcher
	session   *enroll.Session
	store     database.GalleryStore
	autoSave  bool
	dim       int

	storeUnread   bool
	loadedVersion uint64

	mu   sync.Mutex
	mode Mode
	last []gallery.Embedding
}

func NewController(p *Processor, g *gallery.Gallery, cfg ControllerConfig) *Controller {
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = facematch.NewMatcher(facematch.DefaultOptions(), facematch.StrategyLinear)
	}
	metrics.SetGalleryIdentities(g.Len())
	return &Controller{
		processor: p,
		gallery:   g,
		matcher:   matcher,
		session:   enroll.NewSession(g, cfg.Enrollment),
		store:     cfg.Store,
		autoSave:  cfg.AutoSave,
		dim:       cfg.Enrollment.Dim,

		storeUnread:   cfg.StoreUnread,
		loadedVersion: g.Version(),
	}
}

func (c *Controller) Gallery() *gallery.Gallery {
	return c.gallery
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches between recognition and enrollment. Entering enrollment
// starts a new session waiting for a name; leaving it discards any shots
// collected so far. Setting the current mode again is a no-op.
func (c *Controller) SetMode(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setModeLocked(m)
}

// ToggleMode flips the mode and returns the new one.
func (c *Controller) ToggleMode() (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := ModeEnrollment
	if c.mode == ModeEnrollment {
		next = ModeRecognition
	}
	if err := c.setModeLocked(next); err != nil {
		return c.mode, err
	}
	return next, nil
}

func (c *Controller) setModeLocked(m Mode) error {
	if m == c.mode {
		return nil
	}
	switch m {
	case ModeRecognition:
		if c.session.Abandon() {
			logging.Info(nil, "enrollment abandoned")
		}
	case ModeEnrollment:
		id, err := c.session.Begin()
		if err != nil {
			return err
		}
		logging.Info(logging.Fields{"session": id}, "enrollment started")
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	c.mode = m
	return nil
}

// BindName names the identity being enrolled.
func (c *Controller) BindName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeEnrollment {
		return ErrNotEnrolling
	}
	if err := c.session.BindName(name); err != nil {
		return err
	}
	logging.Info(logging.Fields{"name": c.session.Status().Name}, "enrollment name bound")
	return nil
}

// ProcessFrame runs the frame through the pipeline. In recognition mode every
// embedded face is matched against the gallery. Every detected face, usable or
// not, is kept for the next Capture in both modes.
func (c *Controller) ProcessFrame(ctx context.Context, frame image.Image) (FrameResult, error) {
	mode := c.Mode()
	metrics.FrameProcessed(mode.String())

	dim := c.gallery.Dim()
	if dim == 0 {
		dim = c.dim
	}
	faces, err := c.processor.Process(ctx, frame, dim)
	if err != nil {
		return FrameResult{Mode: mode}, err
	}
	res := FrameResult{Mode: mode, Faces: faces}

	if mode == ModeRecognition {
		for i := range res.Faces {
			f := &res.Faces[i]
			if !f.OK() {
				continue
			}
			m, err := c.Recognize(f.Embedding)
			if err != nil {
				f.fail(err)
				logging.Warn(logging.Fields{"face": f.Index}, "recognition failed: "+err.Error())
				continue
			}
			f.Match = &m
			f.Label = m.Label()
		}
	}

	c.mu.Lock()
	c.last = res.Embeddings()
	c.mu.Unlock()
	return res, nil
}

// Recognize matches one embedding against the gallery.
func (c *Controller) Recognize(query gallery.Embedding) (facematch.Match, error) {
	start := time.Now()
	m, err := c.matcher.Recognize(query, c.gallery)
	metrics.ObserveStage(metrics.StageRecognize, start)
	if err != nil {
		return facematch.Match{}, err
	}
	metrics.Recognition(m.Known)
	return m, nil
}

// Capture offers the faces of the last processed frame to the enrollment
// session. A committed identity switches the controller back to recognition.
func (c *Controller) Capture(ctx context.Context) enroll.Result {
	c.mu.Lock()
	if c.mode != ModeEnrollment {
		c.mu.Unlock()
		res := enroll.Result{Outcome: enroll.OutcomeIgnored, Reason: enroll.ReasonNotEnrolling, Shots: c.session.Shots()}
		metrics.EnrollmentCapture(string(res.Outcome))
		return res
	}
	res := c.session.Capture(c.last)
	if res.Outcome == enroll.OutcomeCommitted || res.Outcome == enroll.OutcomeFailed {
		c.mode = ModeRecognition
	}
	c.mu.Unlock()

	metrics.EnrollmentCapture(string(res.Outcome))
	fields := logging.Fields{"name": res.Name, "shot": res.Shot, "shots": res.Shots}
	switch res.Outcome {
	case enroll.OutcomeAccumulated:
		logging.Debug(fields, "enrollment shot accepted")
	case enroll.OutcomeIgnored:
		fields["reason"] = res.Reason
		logging.Info(fields, "enrollment shot ignored")
	case enroll.OutcomeFailed:
		logging.Error(fields, "enrollment failed: "+res.Err.Error())
	case enroll.OutcomeCommitted:
		metrics.SetGalleryIdentities(c.gallery.Len())
		logging.Info(fields, "identity enrolled")
		if c.autoSave {
			if err := c.save(ctx); err != nil {
				logging.Warn(fields, "autosave failed: "+err.Error())
			}
		}
	}
	return res
}

// Status reports the mode, the enrollment session and the gallery size.
func (c *Controller) Status() Status {
	mode := c.Mode()
	return Status{
		Mode:       mode,
		Enrollment: c.session.Status(),
		Identities: c.gallery.Len(),
		Dim:        c.gallery.Dim(),
	}
}

// Quit discards any unfinished enrollment and saves the gallery. An unread
// store is left untouched unless the gallery changed.
func (c *Controller) Quit(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Abandon() {
		logging.Info(nil, "enrollment abandoned on quit")
	}
	c.mode = ModeRecognition
	c.last = nil
	c.mu.Unlock()

	return c.save(ctx)
}

func (c *Controller) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if c.storeUnread && c.gallery.Version() == c.loadedVersion {
		logging.Warn(nil, "gallery not saved: the stored gallery could not be read and nothing was enrolled")
		return nil
	}
	start := time.Now()
	err := c.gallery.Save(ctx, c.store)
	metrics.ObserveStage(metrics.StageSave, start)
	if err != nil {
		return err
	}
	logging.Info(logging.Fields{"identities": c.gallery.Len()}, "gallery saved")
	return nil
}
