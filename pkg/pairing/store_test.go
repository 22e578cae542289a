package pairing

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestUpsertPendingReusesCode(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	first, created, err := s.UpsertPending("discord", "user#1234")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first contact should mint a code")
	}
	if len(first.Code) != codeLength {
		t.Fatalf("code %q has wrong length", first.Code)
	}

	second, created, err := s.UpsertPending("discord", "user#1234")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("repeat contact while pending must not mint a new code")
	}
	if second.Code != first.Code {
		t.Fatalf("code changed on repeat contact: %q vs %q", second.Code, first.Code)
	}
}

func TestUpsertPendingMintsNewCodeAfterExpiry(t *testing.T) {
	s, now := newTestStore(time.Hour)

	first, _, err := s.UpsertPending("discord", "user#1234")
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(2 * time.Hour)

	second, created, err := s.UpsertPending("discord", "user#1234")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expired request should be replaced")
	}
	if second.Code == first.Code {
		t.Fatal("expired request must get a fresh code")
	}
}

func TestApproveRemovesPending(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	req, _, err := s.UpsertPending("telegram", "42")
	if err != nil {
		t.Fatal(err)
	}

	approved, err := s.Approve("telegram", req.Code)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Identity != "42" {
		t.Fatalf("approved identity = %q", approved.Identity)
	}

	if _, err := s.Approve("telegram", req.Code); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("second approve err = %v, want ErrUnknownCode", err)
	}
	if got := s.List("telegram"); len(got) != 0 {
		t.Fatalf("pending list not empty after approve: %v", got)
	}
}

func TestApproveExpiredCodeIsDistinctFromUnknown(t *testing.T) {
	s, now := newTestStore(time.Hour)

	req, _, err := s.UpsertPending("telegram", "42")
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(90 * time.Minute)

	if _, err := s.Approve("telegram", req.Code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expired approve err = %v, want ErrCodeExpired", err)
	}
	if _, err := s.Approve("telegram", "NOSUCHCD"); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("unknown approve err = %v, want ErrUnknownCode", err)
	}
}

func TestApproveWrongChannel(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	req, _, err := s.UpsertPending("telegram", "42")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Approve("discord", req.Code); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("cross-channel approve err = %v, want ErrUnknownCode", err)
	}
}

func TestRejectRemovesPending(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	req, _, err := s.UpsertPending("discord", "user#1234")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reject("discord", req.Code); err != nil {
		t.Fatal(err)
	}
	if got := s.List(""); len(got) != 0 {
		t.Fatalf("pending list not empty after reject: %v", got)
	}
}

func TestListPrunesExpired(t *testing.T) {
	s, now := newTestStore(time.Hour)

	if _, _, err := s.UpsertPending("discord", "old"); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(2 * time.Hour)
	fresh, _, err := s.UpsertPending("discord", "fresh")
	if err != nil {
		t.Fatal(err)
	}

	got := s.List("discord")
	if len(got) != 1 || got[0].Code != fresh.Code {
		t.Fatalf("List = %v, want only the fresh request", got)
	}
}

func TestConcurrentUpsertSingleCode(t *testing.T) {
	s := NewStore(time.Hour)

	const workers = 16
	codes := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _, err := s.UpsertPending("discord", "racer")
			if err != nil {
				t.Error(err)
				return
			}
			codes[i] = req.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes[1:] {
		if code != codes[0] {
			t.Fatalf("concurrent contacts observed different codes: %v", codes)
		}
	}
	if got := s.List("discord"); len(got) != 1 {
		t.Fatalf("expected a single pending entry, got %v", got)
	}
}
