package types

// Eye identifies which eye an image belongs to.
type Eye string

const (
	EyeLeft  Eye = "LEFT"
	EyeRight Eye = "RIGHT"
)

// Valid reports whether e is one of the two known eye sides.
func (e Eye) Valid() bool {
	return e == EyeLeft || e == EyeRight
}

// Letter returns the single-letter sequence prefix for the eye ("L" or "R").
func (e Eye) Letter() string {
	if e == EyeLeft {
		return "L"
	}
	return "R"
}

// CaptureMode records how an image entered the store.
type CaptureMode string

const (
	ModeManual CaptureMode = "MANUAL"
	ModeAuto   CaptureMode = "AUTO"
)

// Letter returns the single-letter sequence infix for the mode ("M" or "A").
func (m CaptureMode) Letter() string {
	if m == ModeManual {
		return "M"
	}
	return "A"
}

// Label is the per-image classification outcome.
type Label string

const (
	LabelODE    Label = "ODE"
	LabelNotODE Label = "NOT_ODE"
	LabelError  Label = "ERROR"
)

// Classification is the result of running the classifier over one image.
// It is either fully absent (nil pointer on CapturedImage) or fully populated.
type Classification struct {
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
}

// CapturedImage is one captured frame crop together with its capture metadata.
// Eye and SequenceName are immutable after creation; SequenceName is never
// reassigned even when earlier images are deleted.
type CapturedImage struct {
	ID             int64           `json:"id"`
	PixelData      []byte          `json:"-"`
	Eye            Eye             `json:"eye"`
	SequenceName   string          `json:"sequence_name"`
	CaptureMode    CaptureMode     `json:"capture_mode"`
	DetectionScore float64         `json:"detection_score"`
	Selected       bool            `json:"-"`
	Classification *Classification `json:"classification,omitempty"`
}

// Verdict is the aggregated per-eye outcome of an analysis run.
type Verdict string

const (
	VerdictODE          Verdict = "ODE"
	VerdictNotODE       Verdict = "NOT_ODE"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
	VerdictNoImages     Verdict = "NO_IMAGES"
	VerdictNoValidVotes Verdict = "NO_VALID_VOTES"
	VerdictPending      Verdict = "PENDING"
)

// Severity is the display class attached to a verdict.
type Severity string

const (
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
)

// EyeAnalysis holds one eye's majority-vote result.
type EyeAnalysis struct {
	Verdict     Verdict  `json:"verdict"`
	VerdictText string   `json:"verdict_text"`
	Class       Severity `json:"class"`
	VoteRatio   float64  `json:"vote_ratio"`
	ValidVotes  int      `json:"valid_votes"`
}

// PendingAnalysis is the sentinel result shown before the first analysis run.
func PendingAnalysis() EyeAnalysis {
	return EyeAnalysis{
		Verdict:     VerdictPending,
		VerdictText: "analysis not yet run",
		Class:       SeverityWarning,
	}
}

// QuestionnaireAnswers maps a workload dimension key to its integer score.
type QuestionnaireAnswers map[string]int

// Clone returns an independent copy of the answers map, so a snapshot taken
// at a stage transition cannot be mutated afterwards.
func (q QuestionnaireAnswers) Clone() QuestionnaireAnswers {
	if q == nil {
		return nil
	}
	c := make(QuestionnaireAnswers, len(q))
	for k, v := range q {
		c[k] = v
	}
	return c
}

// ImageMeta is the per-image metadata included in a submitted session
// document. Raw pixel data never crosses the persistence boundary.
type ImageMeta struct {
	ID           int64  `json:"id"`
	Ordinal      int    `json:"index"`
	Eye          Eye    `json:"eye"`
	SequenceName string `json:"sequence_name"`
}

// SessionDocument is the snapshot appended to the persistence sink on submit.
type SessionDocument struct {
	SessionID  string               `json:"session_id"`
	OperatorID string               `json:"operator_id"`
	SubjectID  string               `json:"subject_id"`
	Analysis   map[Eye]EyeAnalysis  `json:"analysis"`
	Answers    QuestionnaireAnswers `json:"questionnaire"`
	Comments   string               `json:"comments"`
	ImageCount int                  `json:"image_count"`
	Images     []ImageMeta          `json:"image_metadata"`
}
