package climate

import "testing"

func TestWindowNotReadyUntilFull(t *testing.T) {
	w := NewWindow(30)
	for i := 0; i < 29; i++ {
		w.Push(20)
		if w.Ready() {
			t.Fatalf("Ready() true after %d samples", i+1)
		}
	}
	w.Push(20)
	if !w.Ready() {
		t.Fatal("Ready() false after 30 samples")
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(30)
	// Fill with an outlier first, then uniform samples.
	w.Push(100)
	for i := 0; i < 29; i++ {
		w.Push(20)
	}
	if !almostEqual(w.Mean(), (100+29*20)/30.0) {
		t.Errorf("Mean() = %v before eviction", w.Mean())
	}

	// The 31st sample evicts the outlier.
	w.Push(20)
	if !almostEqual(w.Mean(), 20) {
		t.Errorf("Mean() = %v after eviction, want 20", w.Mean())
	}
	if w.Len() != 30 {
		t.Errorf("Len() = %d, want 30", w.Len())
	}
}

func TestWindowMeanPartial(t *testing.T) {
	w := NewWindow(4)
	w.Push(1)
	w.Push(3)
	if !almostEqual(w.Mean(), 2) {
		t.Errorf("Mean() = %v, want 2", w.Mean())
	}
}
