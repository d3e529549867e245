package store

import (
	"fmt"
	"testing"

	"odescreen/types"
)

func TestSequenceNamingPerPartition(t *testing.T) {
	s := New()

	// Interleave manual and auto captures on the right eye with captures
	// on the left eye; each (eye, mode) partition numbers independently.
	mustAppend(t, s, types.EyeRight, types.ModeManual) // RM1
	mustAppend(t, s, types.EyeRight, types.ModeAuto)   // RA1
	mustAppend(t, s, types.EyeLeft, types.ModeManual)  // LM1
	mustAppend(t, s, types.EyeRight, types.ModeManual) // RM2
	mustAppend(t, s, types.EyeRight, types.ModeAuto)   // RA2
	mustAppend(t, s, types.EyeRight, types.ModeManual) // RM3

	want := []string{"RM1", "RA1", "LM1", "RM2", "RA2", "RM3"}
	images := s.Images()
	if len(images) != len(want) {
		t.Fatalf("expected %d images, got %d", len(want), len(images))
	}
	for i, img := range images {
		if img.SequenceName != want[i] {
			t.Fatalf("image %d: got %s want %s", i, img.SequenceName, want[i])
		}
	}
}

func TestAppendRejectsInvalidEye(t *testing.T) {
	s := New()
	if _, err := s.Append(types.Eye("BOTH"), types.ModeManual, 0, nil); err == nil {
		t.Fatal("expected error for invalid eye")
	}
}

func TestIDsAreUniqueAndIncreasing(t *testing.T) {
	s := New()
	var last int64
	for i := 0; i < 100; i++ {
		img := mustAppend(t, s, types.EyeRight, types.ModeAuto)
		if img.ID <= last {
			t.Fatalf("ID not strictly increasing: %d after %d", img.ID, last)
		}
		last = img.ID
	}
}

func TestSelectionModeExitClearsFlags(t *testing.T) {
	s := New()
	a := mustAppend(t, s, types.EyeRight, types.ModeManual)
	b := mustAppend(t, s, types.EyeRight, types.ModeManual)

	s.SetSelectionMode(true)
	s.ToggleSelected(a.ID)
	s.ToggleSelected(b.ID)
	if s.SelectedCount() != 2 {
		t.Fatalf("expected 2 selected, got %d", s.SelectedCount())
	}

	s.SetSelectionMode(false)
	if s.SelectedCount() != 0 {
		t.Fatal("exiting selection mode must clear flags")
	}
	if s.Count() != 2 {
		t.Fatal("exiting selection mode must not delete images")
	}
}

func TestToggleSelectedOutsideSelectionMode(t *testing.T) {
	s := New()
	img := mustAppend(t, s, types.EyeLeft, types.ModeAuto)
	if s.ToggleSelected(img.ID) {
		t.Fatal("toggle must be a no-op outside selection mode")
	}
}

func TestDeletePreservesPartitionIntegrity(t *testing.T) {
	s := New()
	mustAppend(t, s, types.EyeRight, types.ModeManual) // RM1
	victim := mustAppend(t, s, types.EyeRight, types.ModeManual)
	mustAppend(t, s, types.EyeRight, types.ModeManual) // RM3

	s.SetSelectionMode(true)
	s.ToggleSelected(victim.ID)
	if n := s.DeleteSelected(); n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}

	// Survivors keep their names.
	names := []string{}
	for _, img := range s.Images() {
		names = append(names, img.SequenceName)
	}
	if fmt.Sprint(names) != "[RM1 RM3]" {
		t.Fatalf("deletion renumbered survivors: %v", names)
	}

	// The counter is unaffected: the next capture continues the sequence.
	next := mustAppend(t, s, types.EyeRight, types.ModeManual)
	if next.SequenceName != "RM4" {
		t.Fatalf("counter was disturbed by deletion: got %s", next.SequenceName)
	}
}

func TestDeleteAllForcesSelectionModeExit(t *testing.T) {
	s := New()
	a := mustAppend(t, s, types.EyeLeft, types.ModeManual)

	s.SetSelectionMode(true)
	s.ToggleSelected(a.ID)
	s.DeleteSelected()

	if s.Count() != 0 {
		t.Fatal("store should be empty")
	}
	if s.SelectionMode() {
		t.Fatal("emptying the store must force-exit selection mode")
	}
}

func TestResetZeroesCounters(t *testing.T) {
	s := New()
	mustAppend(t, s, types.EyeRight, types.ModeAuto)
	s.Reset()

	if s.Count() != 0 {
		t.Fatal("reset must clear images")
	}
	img := mustAppend(t, s, types.EyeRight, types.ModeAuto)
	if img.SequenceName != "RA1" {
		t.Fatalf("reset must zero counters, got %s", img.SequenceName)
	}
}

func TestMetadataOrdinalsFollowCaptureOrder(t *testing.T) {
	s := New()
	mustAppend(t, s, types.EyeRight, types.ModeAuto)
	mustAppend(t, s, types.EyeLeft, types.ModeManual)

	meta := s.Metadata()
	if len(meta) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(meta))
	}
	if meta[0].Ordinal != 1 || meta[1].Ordinal != 2 {
		t.Fatalf("ordinals wrong: %+v", meta)
	}
	if meta[1].Eye != types.EyeLeft {
		t.Fatalf("eye metadata wrong: %+v", meta[1])
	}
}

func mustAppend(t *testing.T, s *Store, eye types.Eye, mode types.CaptureMode) *types.CapturedImage {
	t.Helper()
	img, err := s.Append(eye, mode, 0.5, nil)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	return img
}
