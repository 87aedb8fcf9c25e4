package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modeltrain/internal/job"
)

func finished(err error, stage job.State) job.Result {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := job.Result{
		Info:       job.Info{ID: "job-1", Seq: 4, Source: "bus", StartedAt: start},
		FinishedAt: start.Add(1500 * time.Millisecond),
		Err:        err,
	}
	if err == nil {
		res.Outcome = job.OutcomeSucceeded
	} else {
		res.Outcome = job.OutcomeFailed
		res.Error = err.Error()
		res.FailedStage = stage
	}
	return res
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	ok := NewEvent(finished(nil, ""), "nulog-models")
	if ok.Type != TypeCompleted || ok.SpecVersion != "1.0" || ok.ID != "job-1" {
		t.Errorf("Unexpected envelope %+v", ok)
	}
	if ok.Data.Bucket != "nulog-models" || ok.Data.State != job.StateIdle || ok.Data.DurationMs != 1500 {
		t.Errorf("Unexpected data %+v", ok.Data)
	}

	failed := NewEvent(finished(errors.New("missing training output"), job.StateValidating), "nulog-models")
	if failed.Type != TypeFailed {
		t.Errorf("Expected %s, got %s", TypeFailed, failed.Type)
	}
	if failed.Data.State != job.StateFailed || failed.Data.FailedStage != job.StateValidating {
		t.Errorf("Unexpected failure data %+v", failed.Data)
	}
	if failed.Data.Bucket != "" || failed.Data.Error != "missing training output" {
		t.Errorf("Unexpected failure data %+v", failed.Data)
	}
}

func TestWebhook_Notify(t *testing.T) {
	t.Parallel()

	var (
		body      []byte
		signature string
		ceType    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		ceType = r.Header.Get("Ce-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "secret", "nulog-models", time.Second, nil)
	if err := w.Notify(context.Background(), finished(nil, "")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if ceType != TypeCompleted {
		t.Errorf("Expected Ce-Type %s, got %q", TypeCompleted, ceType)
	}
	if signature != Sign(body, "secret") {
		t.Errorf("Signature %q does not match body", signature)
	}

	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Invalid event body: %v", err)
	}
	if got.Data.JobID != "job-1" || got.Data.Seq != 4 {
		t.Errorf("Unexpected data %+v", got.Data)
	}
}

func TestWebhook_NoKeyNoSignature(t *testing.T) {
	t.Parallel()

	signed := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, signed = r.Header[SignatureHeader]
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", "b", time.Second, nil)
	if err := w.Notify(context.Background(), finished(nil, "")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if signed {
		t.Error("Expected no signature header without a key")
	}
}

func TestWebhook_Errors(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", "b", time.Second, nil)
	err := w.Notify(context.Background(), finished(nil, ""))

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("Expected HTTP 502 error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	w = NewWebhook(slow.URL, "", "b", 20*time.Millisecond, nil)
	if err := w.Notify(context.Background(), finished(nil, "")); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestWebhook_SuppressesAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", "b", time.Second, nil)
	for range DefaultFailureThreshold {
		if err := w.Notify(context.Background(), finished(nil, "")); err == nil {
			t.Fatal("Expected callback error")
		}
	}

	if err := w.Notify(context.Background(), finished(nil, "")); !errors.Is(err, ErrSuppressed) {
		t.Fatalf("Expected ErrSuppressed, got %v", err)
	}
	if calls != DefaultFailureThreshold {
		t.Errorf("Expected %d calls, got %d", DefaultFailureThreshold, calls)
	}
}
