package service_test

import (
	"fmt"
	"testing"
	"time"

	"execbox/internal/sandbox/result"
	"execbox/internal/service"
	appErr "execbox/pkg/errors"
)

func TestResultStorePutGet(t *testing.T) {
	store := service.NewResultStore(0, 0)
	res := result.SubmissionResult{SubmissionID: "sub-1", State: result.StateTornDown}

	if err := store.Put(res, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get("sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SubmissionID != "sub-1" || got.State != result.StateTornDown {
		t.Errorf("got %+v", got)
	}
}

func TestResultStoreMiss(t *testing.T) {
	store := service.NewResultStore(0, 0)
	_, err := store.Get("nope")
	if err == nil {
		t.Fatal("expected miss")
	}
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Errorf("unexpected code: %v", err)
	}
}

func TestResultStoreTTLExpiry(t *testing.T) {
	store := service.NewResultStore(0, 10*time.Millisecond)
	res := result.SubmissionResult{SubmissionID: "sub-1", State: result.StateTornDown}
	if err := store.Put(res, ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	if _, err := store.Get("sub-1"); err == nil {
		t.Fatal("expired entry still served")
	}
}

func TestResultStoreFingerprintLookup(t *testing.T) {
	store := service.NewResultStore(0, 0)
	source := []byte("int main(){return 0;}")
	digest := service.Fingerprint(source, nil)

	res := result.SubmissionResult{SubmissionID: "sub-1", State: result.StateTornDown}
	if err := store.Put(res, digest); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := store.LookupByFingerprint(digest)
	if !ok {
		t.Fatal("fingerprint lookup missed")
	}
	if got.SubmissionID != "sub-1" {
		t.Errorf("got %s", got.SubmissionID)
	}

	if _, ok := store.LookupByFingerprint(service.Fingerprint([]byte("other"), nil)); ok {
		t.Fatal("different source matched")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := service.Fingerprint([]byte("abc"), []byte("in"))
	b := service.Fingerprint([]byte("abc"), []byte("in"))
	c := service.Fingerprint([]byte("abd"), []byte("in"))
	d := service.Fingerprint([]byte("abc"), []byte("other"))
	if a != b {
		t.Error("same input produced different digests")
	}
	if a == c {
		t.Error("different sources collided")
	}
	if a == d {
		t.Error("different stdin collided")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d", len(a))
	}
}

func TestResultStoreCapacityEviction(t *testing.T) {
	store := service.NewResultStore(4, time.Minute)
	for i := 0; i < 8; i++ {
		res := result.SubmissionResult{
			SubmissionID: fmt.Sprintf("sub-%d", i),
			State:        result.StateTornDown,
		}
		if err := store.Put(res, ""); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	// The most recent entry always survives.
	if _, err := store.Get("sub-7"); err != nil {
		t.Fatalf("latest entry evicted: %v", err)
	}

	present := 0
	for i := 0; i < 8; i++ {
		if _, err := store.Get(fmt.Sprintf("sub-%d", i)); err == nil {
			present++
		}
	}
	if present > 4 {
		t.Errorf("capacity not enforced: %d entries", present)
	}
}
