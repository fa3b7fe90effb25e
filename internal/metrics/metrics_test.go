package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/healthz", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/messages/sms", 200, 50*time.Millisecond)
	RecordRequest("POST", "/v1/messages/sms", 502, 10*time.Millisecond)
}

func TestRecordDeliveryAttempt(t *testing.T) {
	RecordDeliveryAttempt("termii", "NG", true, 0.035)
	RecordDeliveryAttempt("termii", "NG", false, 0)
	RecordDeliveryAttempt("twilio", "US", true, 0.0079)
}

func TestRecordFallbackDepth(t *testing.T) {
	RecordFallbackDepth("sms", 1)
	RecordFallbackDepth("voice", 3)
}

func TestRecordChainExhausted(t *testing.T) {
	RecordChainExhausted("sms", "NG")
	RecordChainExhausted("whatsapp", "KE")
}

func TestRecordVoiceEvent(t *testing.T) {
	RecordVoiceEvent("completed")
	RecordVoiceEvent("no-answer")
}

func TestRecordVoiceSessionLookup(t *testing.T) {
	RecordVoiceSessionLookup("hit")
	RecordVoiceSessionLookup("miss")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if len(body) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
