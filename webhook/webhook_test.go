package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_Signed(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
		gotUA   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ev := NewEvent(EventSearchCompleted, "job-1", map[string]int{"total": 3})
	if err := Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if want := Sign("s3cret", gotBody); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	if gotUA != "SmarterAZ-Webhook/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != EventSearchCompleted || decoded.JobID != "job-1" {
		t.Errorf("event = %+v", decoded)
	}
}

func TestDeliver_Unsigned(t *testing.T) {
	var hasSig atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSig.Store(r.Header.Get(SignatureHeader) != "")
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", NewEvent(EventSearchPage, "j", nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if hasSig.Load() {
		t.Error("signature header sent without a secret")
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", NewEvent(EventSearchFailed, "j", nil)); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestDeliverWithRetry_RecoversAfterFailure(t *testing.T) {
	old := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = old }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	if err := DeliverWithRetry(srv.URL, "", NewEvent(EventSearchPage, "j", nil)); err != nil {
		t.Fatalf("DeliverWithRetry: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestQueue_PreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []float64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev struct {
			Data struct {
				Page float64 `json:"page"`
			} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ev)
		mu.Lock()
		pages = append(pages, ev.Data.Page)
		mu.Unlock()
	}))
	defer srv.Close()

	q := NewQueue(srv.URL, "")
	for i := 1; i <= 5; i++ {
		q.Send(NewEvent(EventSearchPage, "j", map[string]int{"page": i}))
	}
	q.Close()
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(pages) != 5 {
		t.Fatalf("delivered %d events, want 5", len(pages))
	}
	for i, p := range pages {
		if int(p) != i+1 {
			t.Errorf("event %d carried page %v", i, p)
		}
	}
}
