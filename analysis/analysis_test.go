package analysis

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"odescreen/store"
	"odescreen/types"
)

// scriptedClassifier returns the probability encoded in the image payload,
// or an error for the payload "fail".
type scriptedClassifier struct{}

func (scriptedClassifier) Classify(ctx context.Context, image []byte) (float64, error) {
	if string(image) == "fail" {
		return 0, errors.New("decode failed")
	}
	return strconv.ParseFloat(string(image), 64)
}

func appendScored(t *testing.T, s *store.Store, eye types.Eye, score float64, payload string) {
	t.Helper()
	if _, err := s.Append(eye, types.ModeAuto, score, []byte(payload)); err != nil {
		t.Fatal(err)
	}
}

func TestMajorityVoteODE(t *testing.T) {
	s := store.New()
	// p is P(not-ODE): two ODE votes (p below 0.5), one NOT_ODE vote.
	appendScored(t, s, types.EyeRight, 0.9, "0.1")
	appendScored(t, s, types.EyeRight, 0.8, "0.2")
	appendScored(t, s, types.EyeRight, 0.7, "0.9")

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	right := res[types.EyeRight]
	if right.Verdict != types.VerdictODE {
		t.Fatalf("expected ODE verdict, got %s", right.Verdict)
	}
	if right.VoteRatio < 0.66 || right.VoteRatio > 0.67 {
		t.Fatalf("expected vote ratio 2/3, got %v", right.VoteRatio)
	}
	if right.Class != types.SeverityWarning {
		t.Fatalf("ODE verdict must carry WARNING class, got %s", right.Class)
	}
}

func TestTieIsInconclusive(t *testing.T) {
	s := store.New()
	appendScored(t, s, types.EyeLeft, 0.9, "0.1") // ODE
	appendScored(t, s, types.EyeLeft, 0.8, "0.9") // NOT_ODE

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	left := res[types.EyeLeft]
	if left.Verdict != types.VerdictInconclusive {
		t.Fatalf("expected INCONCLUSIVE, got %s", left.Verdict)
	}
	if left.VoteRatio != 0.5 {
		t.Fatalf("expected vote ratio 0.5, got %v", left.VoteRatio)
	}
}

func TestAllErrorsIsNoValidVotes(t *testing.T) {
	s := store.New()
	appendScored(t, s, types.EyeRight, 0.9, "fail")
	appendScored(t, s, types.EyeRight, 0.8, "fail")

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	right := res[types.EyeRight]
	if right.Verdict != types.VerdictNoValidVotes {
		t.Fatalf("expected NO_VALID_VOTES, got %s", right.Verdict)
	}
	// Distinct from INCONCLUSIVE.
	if right.Verdict == types.VerdictInconclusive {
		t.Fatal("all-error outcome must differ from a tie")
	}
}

func TestEmptyEyeSkipsClassification(t *testing.T) {
	s := store.New()
	appendScored(t, s, types.EyeRight, 0.9, "0.9")

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	if res[types.EyeLeft].Verdict != types.VerdictNoImages {
		t.Fatalf("expected NO_IMAGES for empty eye, got %s", res[types.EyeLeft].Verdict)
	}
	if res[types.EyeRight].Verdict != types.VerdictNotODE {
		t.Fatalf("expected NOT_ODE for right eye, got %s", res[types.EyeRight].Verdict)
	}
	if res[types.EyeRight].Class != types.SeveritySuccess {
		t.Fatalf("NOT_ODE must carry SUCCESS class, got %s", res[types.EyeRight].Class)
	}
}

func TestErrorImageDoesNotAbortBatch(t *testing.T) {
	s := store.New()
	appendScored(t, s, types.EyeRight, 0.9, "fail")
	appendScored(t, s, types.EyeRight, 0.8, "0.1")
	appendScored(t, s, types.EyeRight, 0.7, "0.2")

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	right := res[types.EyeRight]
	if right.Verdict != types.VerdictODE {
		t.Fatalf("expected ODE from surviving votes, got %s", right.Verdict)
	}
	if right.ValidVotes != 2 {
		t.Fatalf("expected 2 valid votes, got %d", right.ValidVotes)
	}

	// The failed image is tagged ERROR, fully populated or absent only.
	var errTagged int
	for _, img := range s.ImagesForEye(types.EyeRight) {
		if img.Classification == nil {
			t.Fatalf("image %s left untagged after analysis", img.SequenceName)
		}
		if img.Classification.Label == types.LabelError {
			errTagged++
		}
	}
	if errTagged != 1 {
		t.Fatalf("expected exactly one ERROR tag, got %d", errTagged)
	}
}

func TestTopKExcludesLowScores(t *testing.T) {
	s := store.New()
	scores := []float64{0.95, 0.91, 0.88, 0.72, 0.65, 0.99}
	for _, score := range scores {
		// Every classified image votes ODE.
		appendScored(t, s, types.EyeRight, score, "0.1")
	}

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	res := o.Run(context.Background(), s)

	if res[types.EyeRight].ValidVotes != 5 {
		t.Fatalf("expected top-5 selection, got %d votes", res[types.EyeRight].ValidVotes)
	}

	// The 0.65-scored image must not have been classified.
	for _, img := range s.ImagesForEye(types.EyeRight) {
		if img.DetectionScore == 0.65 && img.Classification != nil {
			t.Fatal("image outside top-K was classified")
		}
	}
}

func TestProbabilityFlipsWithLabel(t *testing.T) {
	s := store.New()
	appendScored(t, s, types.EyeRight, 0.9, "0.2")

	o := NewOrchestrator(scriptedClassifier{}, DefaultOptions())
	o.Run(context.Background(), s)

	img := s.ImagesForEye(types.EyeRight)[0]
	if img.Classification.Label != types.LabelODE {
		t.Fatalf("expected ODE label, got %s", img.Classification.Label)
	}
	if p := img.Classification.Probability; p < 0.79 || p > 0.81 {
		t.Fatalf("expected flipped probability 0.8, got %v", p)
	}
}
