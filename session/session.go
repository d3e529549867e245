// Package session sequences a screening session through its stages:
// INTAKE, CAPTURE, REVIEW, ANALYSIS, QUESTIONNAIRE, OVERVIEW and the
// terminal SUBMITTED. The machine enforces transition guards, starts and
// stops the capture stage deterministically, snapshots questionnaire
// answers at the moment of the QUESTIONNAIRE -> OVERVIEW transition, and
// resets all sub-state when a brand-new session begins.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"odescreen/logging"
	"odescreen/questionnaire"
	"odescreen/store"
	"odescreen/types"
)

// Stage is a position in the session state machine.
type Stage string

const (
	StageIntake        Stage = "INTAKE"
	StageCapture       Stage = "CAPTURE"
	StageReview        Stage = "REVIEW"
	StageAnalysis      Stage = "ANALYSIS"
	StageQuestionnaire Stage = "QUESTIONNAIRE"
	StageOverview      Stage = "OVERVIEW"
	StageSubmitted     Stage = "SUBMITTED"
)

var (
	// ErrMissingIdentity blocks leaving intake without operator and subject.
	ErrMissingIdentity = errors.New("operator and subject IDs are required")

	// ErrInvalidTransition blocks navigation the state machine forbids.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrNoImages blocks analysis of an empty image store.
	ErrNoImages = errors.New("no images captured")

	// ErrSinkNotReady blocks submission before the persistence prerequisite
	// is available.
	ErrSinkNotReady = errors.New("persistence sink is not ready")
)

// CaptureStage is the capture controller surface the machine drives.
// Stop must be synchronous: after it returns, no late detection cycle may
// mutate the image store or the indicator.
type CaptureStage interface {
	Start(ctx context.Context) error
	Stop()
}

// Analyzer runs classification over the store and returns per-eye results.
type Analyzer interface {
	Run(ctx context.Context, images *store.Store) map[types.Eye]types.EyeAnalysis
}

// Sink is the append-only session document store. Ready reports whether the
// external auth/session prerequisite is satisfied.
type Sink interface {
	Ready() error
	AppendSession(ctx context.Context, doc types.SessionDocument) error
}

// Machine owns one session's state and its stage position.
type Machine struct {
	mu sync.Mutex

	id         string
	operatorID string
	subjectID  string
	stage      Stage

	images   *store.Store
	analysis map[types.Eye]types.EyeAnalysis
	answers  types.QuestionnaireAnswers
	comments string

	capture  CaptureStage
	analyzer Analyzer
	sink     Sink
}

// New creates a machine at INTAKE with a fresh session identity. The image
// store is shared with the capture controller, which appends into it while
// the machine owns its lifecycle.
func New(images *store.Store, capture CaptureStage, analyzer Analyzer, sink Sink) *Machine {
	m := &Machine{
		capture:  capture,
		analyzer: analyzer,
		sink:     sink,
		images:   images,
	}
	m.resetLocked()
	return m
}

// resetLocked installs a brand-new session identity and clears every piece
// of sub-state, including the per-(eye, mode) capture counters.
func (m *Machine) resetLocked() {
	m.id = uuid.NewString()
	m.operatorID = ""
	m.subjectID = ""
	m.stage = StageIntake
	m.images.Reset()
	m.analysis = map[types.Eye]types.EyeAnalysis{
		types.EyeLeft:  types.PendingAnalysis(),
		types.EyeRight: types.PendingAnalysis(),
	}
	m.answers = nil
	m.comments = ""
}

// ID returns the session identity.
func (m *Machine) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Stage returns the current stage.
func (m *Machine) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// Images exposes the session's image store.
func (m *Machine) Images() *store.Store {
	return m.images
}

// Begin validates the intake form and moves INTAKE -> CAPTURE, starting the
// frame source. Re-entering CAPTURE later in the same session goes through
// Transition and does not reset the capture counters; only a brand-new
// session zeroes them.
func (m *Machine) Begin(ctx context.Context, operatorID, subjectID string) error {
	operatorID = strings.TrimSpace(operatorID)
	subjectID = strings.TrimSpace(subjectID)
	if operatorID == "" || subjectID == "" {
		return ErrMissingIdentity
	}

	m.mu.Lock()
	if m.stage != StageIntake {
		m.mu.Unlock()
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.stage)
	}
	m.operatorID = operatorID
	m.subjectID = subjectID
	m.stage = StageCapture
	m.mu.Unlock()

	if err := m.capture.Start(ctx); err != nil {
		// The camera failing leaves the stage usable in a degraded state;
		// detection simply never fires.
		logging.LogStageEvent("CAPTURE", "start frame source", err)
	}
	return nil
}

// Transition navigates between stages. Leaving CAPTURE stops the frame
// source, disarms auto-capture and clears the indicator before the new
// stage becomes current. OVERVIEW is reachable only through
// CompleteQuestionnaire and SUBMITTED only through Submit.
func (m *Machine) Transition(ctx context.Context, to Stage) error {
	m.mu.Lock()
	from := m.stage

	if from == StageSubmitted {
		m.mu.Unlock()
		return fmt.Errorf("%w: session already submitted", ErrInvalidTransition)
	}
	switch to {
	case StageOverview, StageSubmitted:
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	case StageIntake, StageCapture, StageReview, StageAnalysis, StageQuestionnaire:
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, to)
	}
	if to == from {
		m.mu.Unlock()
		return nil
	}
	// Every stage past intake requires the intake form to be complete.
	if to != StageIntake && (m.operatorID == "" || m.subjectID == "") {
		m.mu.Unlock()
		return ErrMissingIdentity
	}
	m.stage = to
	m.mu.Unlock()

	if from == StageCapture {
		m.capture.Stop()
	}
	if to == StageCapture {
		if err := m.capture.Start(ctx); err != nil {
			logging.LogStageEvent("CAPTURE", "restart frame source", err)
		}
	}
	return nil
}

// RunAnalysis classifies the top-K subset of each eye and stores the
// per-eye verdicts. The previous result remains displayed until this is
// invoked again; navigating away and back does not clear it.
func (m *Machine) RunAnalysis(ctx context.Context) error {
	m.mu.Lock()
	if m.stage != StageAnalysis {
		m.mu.Unlock()
		return fmt.Errorf("%w: analysis from %s", ErrInvalidTransition, m.stage)
	}
	if m.images.Count() == 0 {
		m.mu.Unlock()
		return ErrNoImages
	}
	m.mu.Unlock()

	results := m.analyzer.Run(ctx, m.images)

	m.mu.Lock()
	defer m.mu.Unlock()
	for eye, res := range results {
		m.analysis[eye] = res
	}
	return nil
}

// Analysis returns a copy of the last computed per-eye results, or the
// pending sentinels before the first run.
func (m *Machine) Analysis() map[types.Eye]types.EyeAnalysis {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[types.Eye]types.EyeAnalysis, len(m.analysis))
	for eye, res := range m.analysis {
		out[eye] = res
	}
	return out
}

// CompleteQuestionnaire validates the answers, snapshots them into the
// session and moves QUESTIONNAIRE -> OVERVIEW. The snapshot taken here is
// what the overview displays and what Submit eventually persists; later
// mutations of the caller's map have no effect.
func (m *Machine) CompleteQuestionnaire(answers types.QuestionnaireAnswers, comments string) error {
	if err := questionnaire.Validate(answers); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage != StageQuestionnaire {
		return fmt.Errorf("%w: questionnaire from %s", ErrInvalidTransition, m.stage)
	}
	m.answers = answers.Clone()
	m.comments = comments
	m.stage = StageOverview
	return nil
}

// Document builds the session snapshot that crosses the persistence
// boundary. Raw pixel data is deliberately excluded.
func (m *Machine) Document() types.SessionDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.documentLocked()
}

func (m *Machine) documentLocked() types.SessionDocument {
	analysis := make(map[types.Eye]types.EyeAnalysis, len(m.analysis))
	for eye, res := range m.analysis {
		analysis[eye] = res
	}
	return types.SessionDocument{
		SessionID:  m.id,
		OperatorID: m.operatorID,
		SubjectID:  m.subjectID,
		Analysis:   analysis,
		Answers:    m.answers.Clone(),
		Comments:   m.comments,
		ImageCount: m.images.Count(),
		Images:     m.images.Metadata(),
	}
}

// Submit appends the session document to the sink and moves OVERVIEW ->
// SUBMITTED. On failure the stage and all session state are retained so the
// operator can retry.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.stage != StageOverview {
		m.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, m.stage)
	}
	if err := m.sink.Ready(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSinkNotReady, err)
	}
	doc := m.documentLocked()
	m.mu.Unlock()

	if err := m.sink.AppendSession(ctx, doc); err != nil {
		logging.LogStageEvent("OVERVIEW", "append session document", err)
		return fmt.Errorf("submission failed: %v", err)
	}

	m.mu.Lock()
	m.stage = StageSubmitted
	m.mu.Unlock()
	return nil
}

// NewSession discards all session state and returns to INTAKE with a new
// session identity and zeroed capture counters. Valid from any stage,
// including the submission acknowledgment.
func (m *Machine) NewSession() {
	m.mu.Lock()
	from := m.stage
	m.resetLocked()
	m.mu.Unlock()

	if from == StageCapture {
		m.capture.Stop()
	}
}
