package transport

import "testing"

func TestSeqTrackerContiguous(t *testing.T) {
	tr := newSeqTracker()
	for seq := uint64(1); seq <= 5; seq++ {
		if tr.observe(seq) {
			t.Fatalf("contiguous seq %d flagged as gap", seq)
		}
	}
}

func TestSeqTrackerDetectsSkip(t *testing.T) {
	tr := newSeqTracker()
	tr.observe(1)
	tr.observe(2)

	if !tr.observe(5) {
		t.Fatal("skip from 2 to 5 not flagged")
	}
	if tr.observe(6) {
		t.Fatal("tracking did not resume after the gap")
	}
}

func TestSeqTrackerFirstEventCanGap(t *testing.T) {
	tr := newSeqTracker()
	if !tr.observe(3) {
		t.Fatal("stream starting at 3 should flag the missing prefix")
	}
}

func TestSeqTrackerIgnoresDuplicates(t *testing.T) {
	tr := newSeqTracker()
	tr.observe(1)
	tr.observe(2)

	if tr.observe(2) {
		t.Fatal("duplicate seq flagged as gap")
	}
	if tr.observe(3) {
		t.Fatal("seq after duplicate flagged as gap")
	}
}

func TestSeqTrackerReset(t *testing.T) {
	tr := newSeqTracker()
	tr.observe(1)
	tr.observe(2)

	tr.reset()
	if tr.observe(1) {
		t.Fatal("fresh connection starting at 1 flagged as gap")
	}
}
