package audio

import "testing"

func TestRingPushWithinCapacity(t *testing.T) {
	ring := NewRing(8)
	ring.Push(seq(0, 5))

	if ring.Len() != 5 {
		t.Errorf("Expected length 5, got %d", ring.Len())
	}

	snap := ring.Snapshot()
	for i, s := range snap {
		if s != float32(i) {
			t.Errorf("Sample %d: expected %d, got %v", i, i, s)
		}
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	ring := NewRing(8)
	for i := 0; i < 5; i++ {
		ring.Push(seq(i*3, 3))
	}

	if ring.Len() != ring.Cap() {
		t.Fatalf("Expected full ring of %d, got %d", ring.Cap(), ring.Len())
	}

	// 15 samples pushed, last 8 retained: 7..14
	snap := ring.Snapshot()
	for i, s := range snap {
		if s != float32(7+i) {
			t.Errorf("Sample %d: expected %d, got %v", i, 7+i, s)
		}
	}
}

func TestRingPushLargerThanCapacity(t *testing.T) {
	ring := NewRing(4)
	ring.Push(seq(0, 2))
	ring.Push(seq(100, 10))

	snap := ring.Snapshot()
	expected := []float32{106, 107, 108, 109}
	if len(snap) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(snap))
	}
	for i := range expected {
		if snap[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], snap[i])
		}
	}
}

func TestRingLengthNeverExceedsCapacity(t *testing.T) {
	ring := NewRing(100)
	for i := 0; i < 50; i++ {
		ring.Push(seq(0, 7+i%13))
		if ring.Len() > ring.Cap() {
			t.Fatalf("Ring length %d exceeds capacity %d", ring.Len(), ring.Cap())
		}
	}
}

func TestRingReset(t *testing.T) {
	ring := NewRing(4)
	ring.Push(seq(0, 4))
	ring.Reset()

	if ring.Len() != 0 {
		t.Errorf("Expected empty ring after reset, got %d", ring.Len())
	}
	if len(ring.Snapshot()) != 0 {
		t.Error("Expected empty snapshot after reset")
	}
}

func TestRingZeroCapacity(t *testing.T) {
	ring := NewRing(0)
	ring.Push(seq(0, 10))

	if ring.Len() != 0 {
		t.Errorf("Expected zero-capacity ring to stay empty, got %d", ring.Len())
	}
}
