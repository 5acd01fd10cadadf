package ratelimit

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSlidingWindow_CountsWithinWindow(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	sw.Add(base, 3)
	sw.Add(base.Add(10*time.Second), 2)

	if got := sw.Count(base.Add(20 * time.Second)); got != 5 {
		t.Errorf("Expected 5 actions in window, got %d", got)
	}
}

func TestSlidingWindow_Decay(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	sw.Add(base, 5)
	sw.Add(base.Add(30*time.Second), 1)

	// 70s later the first batch is outside the window, the second
	// is still inside.
	if got := sw.Count(base.Add(70 * time.Second)); got != 1 {
		t.Errorf("Expected 1 action after decay, got %d", got)
	}

	// Past 91s everything is gone.
	if got := sw.Count(base.Add(2 * time.Minute)); got != 0 {
		t.Errorf("Expected empty window, got %d", got)
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)
	sw.Add(base, 10)
	sw.Reset()
	if got := sw.Count(base); got != 0 {
		t.Errorf("Expected 0 after reset, got %d", got)
	}
}

func TestFixedWindow_ResetsAtBoundary(t *testing.T) {
	fw := NewFixedWindow(time.Minute)

	// base is exactly on a minute boundary.
	fw.Add(base.Add(10*time.Second), 4)
	if got := fw.Count(base.Add(59 * time.Second)); got != 4 {
		t.Errorf("Expected 4 inside window, got %d", got)
	}

	// Crossing the boundary clears the count entirely.
	if got := fw.Count(base.Add(61 * time.Second)); got != 0 {
		t.Errorf("Expected 0 after boundary, got %d", got)
	}

	fw.Add(base.Add(65*time.Second), 1)
	if got := fw.Count(base.Add(70 * time.Second)); got != 1 {
		t.Errorf("Expected 1 in new window, got %d", got)
	}
}

func TestFixedWindow_SplitAcrossBoundaryRejectsNothing(t *testing.T) {
	// M actions split M/2 + M/2 across a boundary never exceed M
	// in either window.
	const m = 10
	fw := NewFixedWindow(time.Minute)

	for i := 0; i < m/2; i++ {
		fw.Add(base.Add(50*time.Second), 1)
	}
	for i := 0; i < m/2; i++ {
		fw.Add(base.Add(70*time.Second), 1)
	}

	if got := fw.Count(base.Add(70 * time.Second)); got != m/2 {
		t.Errorf("Expected %d in second window, got %d", m/2, got)
	}
}
