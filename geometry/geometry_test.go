package geometry

import (
	"image"
	"testing"
)

func TestPadClampsAtOrigin(t *testing.T) {
	b := Box{YMin: 0.0, XMin: 0.0, YMax: 0.05, XMax: 0.05}
	padded := b.Pad(0.10)

	if padded.YMin < 0 || padded.XMin < 0 {
		t.Fatalf("padding produced negative coordinates: %+v", padded)
	}
	if padded.YMax <= b.YMax || padded.XMax <= b.XMax {
		t.Fatalf("padding did not expand the free sides: %+v", padded)
	}
}

func TestPadClampsAtFarEdge(t *testing.T) {
	b := Box{YMin: 0.95, XMin: 0.95, YMax: 1.0, XMax: 1.0}
	padded := b.Pad(0.10)

	if padded.YMax > 1 || padded.XMax > 1 {
		t.Fatalf("padding exceeded 1.0: %+v", padded)
	}
	if padded.YMin >= b.YMin || padded.XMin >= b.XMin {
		t.Fatalf("padding did not expand the free sides: %+v", padded)
	}
}

func TestPadSplitsEvenly(t *testing.T) {
	b := Box{YMin: 0.4, XMin: 0.4, YMax: 0.6, XMax: 0.6}
	padded := b.Pad(0.10)

	// 10% of a 0.2 extent is 0.02, split as 0.01 per side.
	const eps = 1e-9
	if diff := b.YMin - padded.YMin; diff < 0.01-eps || diff > 0.01+eps {
		t.Fatalf("unexpected top padding %v", diff)
	}
	if diff := padded.XMax - b.XMax; diff < 0.01-eps || diff > 0.01+eps {
		t.Fatalf("unexpected right padding %v", diff)
	}
}

func TestFlipReflectsBothAxes(t *testing.T) {
	b := Box{YMin: 0.1, XMin: 0.2, YMax: 0.3, XMax: 0.4}
	f := b.Flip()

	want := Box{YMin: 0.7, XMin: 0.6, YMax: 0.9, XMax: 0.8}
	const eps = 1e-9
	for _, pair := range [][2]float64{
		{f.YMin, want.YMin}, {f.XMin, want.XMin},
		{f.YMax, want.YMax}, {f.XMax, want.XMax},
	} {
		if d := pair[0] - pair[1]; d > eps || d < -eps {
			t.Fatalf("flip mismatch: got %+v want %+v", f, want)
		}
	}

	// Flipping twice returns the original box.
	ff := f.Flip()
	if d := ff.YMin - b.YMin; d > eps || d < -eps {
		t.Fatalf("double flip not identity: %+v vs %+v", ff, b)
	}
}

func TestToRectDegenerateBoxFallsBackToMinimum(t *testing.T) {
	b := Box{YMin: 0.5, XMin: 0.5, YMax: 0.5, XMax: 0.5}
	r, err := b.ToRect(640, 480)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Dx() < 1 || r.Dy() < 1 {
		t.Fatalf("degenerate box produced zero-area rect: %v", r)
	}
}

func TestToRectStaysInsideFrame(t *testing.T) {
	b := Box{YMin: -0.2, XMin: -0.2, YMax: 1.2, XMax: 1.2}
	r, err := b.ToRect(640, 480)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.In(image.Rect(0, 0, 640, 480)) {
		t.Fatalf("rect escapes the frame: %v", r)
	}
}

func TestToRectRejectsInvalidFrame(t *testing.T) {
	b := Box{YMin: 0.1, XMin: 0.1, YMax: 0.9, XMax: 0.9}
	if _, err := b.ToRect(0, 480); err == nil {
		t.Fatal("expected error for zero-width frame")
	}
}
