// Package analysis runs the classifier over the top-K detection-ranked
// images of each eye and aggregates the per-image labels into one majority
// verdict per eye. Both eyes are processed concurrently and independently.
package analysis

import (
	"context"
	"fmt"
	"sync"

	"odescreen/logging"
	"odescreen/store"
	"odescreen/types"
)

// Classifier runs the binary model over one encoded image and returns the
// probability of the not-ODE class (single sigmoid output convention).
type Classifier interface {
	Classify(ctx context.Context, image []byte) (float64, error)
}

// Options holds the analysis policy knobs.
type Options struct {
	TopK                    int
	ClassificationThreshold float64
}

// DefaultOptions mirrors the deployed analysis policy.
func DefaultOptions() Options {
	return Options{
		TopK:                    5,
		ClassificationThreshold: 0.5,
	}
}

// Orchestrator classifies each eye's top-K subset and tallies the votes.
type Orchestrator struct {
	classifier Classifier
	opts       Options
}

// NewOrchestrator wires an orchestrator to its classifier.
func NewOrchestrator(classifier Classifier, opts Options) *Orchestrator {
	if opts.TopK < 1 {
		opts.TopK = DefaultOptions().TopK
	}
	return &Orchestrator{classifier: classifier, opts: opts}
}

// Run analyzes both eyes concurrently and returns the per-eye results. A
// failure in one eye's batch never blocks or corrupts the other's; the call
// returns once both batches have settled.
func (o *Orchestrator) Run(ctx context.Context, images *store.Store) map[types.Eye]types.EyeAnalysis {
	results := make(map[types.Eye]types.EyeAnalysis, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, eye := range []types.Eye{types.EyeLeft, types.EyeRight} {
		wg.Add(1)
		go func(eye types.Eye) {
			defer wg.Done()
			res := o.runEye(ctx, eye, images.ImagesForEye(eye))
			mu.Lock()
			results[eye] = res
			mu.Unlock()
		}(eye)
	}
	wg.Wait()

	return results
}

// runEye classifies one eye's top-K subset and computes its majority vote.
func (o *Orchestrator) runEye(ctx context.Context, eye types.Eye, images []*types.CapturedImage) types.EyeAnalysis {
	if len(images) == 0 {
		return types.EyeAnalysis{
			Verdict:     types.VerdictNoImages,
			VerdictText: "no images captured",
			Class:       types.SeverityWarning,
		}
	}

	selected := SelectTopK(images, o.opts.TopK)

	// Per-image classification calls run concurrently; the tally waits for
	// every call to settle, successfully or with an error.
	var wg sync.WaitGroup
	for _, img := range selected {
		wg.Add(1)
		go func(img *types.CapturedImage) {
			defer wg.Done()
			o.classifyImage(ctx, eye, img)
		}(img)
	}
	wg.Wait()

	return tally(selected)
}

// classifyImage tags one image with its classification result. Decode or
// inference failures mark the image ERROR and never abort the batch.
func (o *Orchestrator) classifyImage(ctx context.Context, eye types.Eye, img *types.CapturedImage) {
	p, err := o.classifier.Classify(ctx, img.PixelData)
	if err != nil {
		logging.LogStageEvent("ANALYSIS", fmt.Sprintf("classify %s %s", eye, img.SequenceName), err)
		img.Classification = &types.Classification{Label: types.LabelError}
		return
	}

	// p is the probability of the not-ODE class; flip it when the label
	// flips so the stored probability always refers to the stored label.
	if p > o.opts.ClassificationThreshold {
		img.Classification = &types.Classification{Label: types.LabelNotODE, Probability: p}
	} else {
		img.Classification = &types.Classification{Label: types.LabelODE, Probability: 1 - p}
	}
}

// tally computes the majority verdict among non-ERROR labels.
func tally(images []*types.CapturedImage) types.EyeAnalysis {
	var ode, notODE int
	for _, img := range images {
		if img.Classification == nil {
			continue
		}
		switch img.Classification.Label {
		case types.LabelODE:
			ode++
		case types.LabelNotODE:
			notODE++
		}
	}

	valid := ode + notODE
	if valid == 0 {
		return types.EyeAnalysis{
			Verdict:     types.VerdictNoValidVotes,
			VerdictText: "no valid classification votes",
			Class:       types.SeverityWarning,
		}
	}

	if ode == notODE {
		return types.EyeAnalysis{
			Verdict:     types.VerdictInconclusive,
			VerdictText: fmt.Sprintf("inconclusive (%d vs %d votes)", ode, notODE),
			Class:       types.SeverityWarning,
			VoteRatio:   0.5,
			ValidVotes:  valid,
		}
	}

	if notODE > ode {
		return types.EyeAnalysis{
			Verdict:     types.VerdictNotODE,
			VerdictText: fmt.Sprintf("no optic disc edema detected (%d/%d votes)", notODE, valid),
			Class:       types.SeveritySuccess,
			VoteRatio:   float64(notODE) / float64(valid),
			ValidVotes:  valid,
		}
	}

	return types.EyeAnalysis{
		Verdict:     types.VerdictODE,
		VerdictText: fmt.Sprintf("optic disc edema suspected (%d/%d votes)", ode, valid),
		Class:       types.SeverityWarning,
		VoteRatio:   float64(ode) / float64(valid),
		ValidVotes:  valid,
	}
}
