package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadBodyStrict(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr error
	}{
		{name: "ok", body: `{"a":1}`, limit: 100},
		{name: "empty", body: "", limit: 100, wantErr: ErrEmptyBody},
		{name: "too large", body: strings.Repeat("x", 20), limit: 10, wantErr: ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			body, err := ReadBodyStrict(w, req, tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(body) != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, body)
			}
		})
	}
}

func TestDecodeJSONStrict(t *testing.T) {
	var v struct {
		Year int `json:"year"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"year":2024}`))
	if err := DecodeJSONStrict(httptest.NewRecorder(), req, 1024, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Year != 2024 {
		t.Errorf("expected 2024, got %d", v.Year)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"year":2024,"extra":true}`))
	if err := DecodeJSONStrict(httptest.NewRecorder(), req, 1024, &v); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, errors.New("invoice already issued"))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Error != "invoice already issued" {
		t.Errorf("unexpected error message %q", resp.Error)
	}
}

func TestRateLimiter_Window(t *testing.T) {
	now := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("1.1.1.1") || !limiter.Allow("1.1.1.1") {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.Allow("1.1.1.1") {
		t.Error("expected third request to be limited")
	}
	if !limiter.Allow("2.2.2.2") {
		t.Error("expected other client to pass")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("1.1.1.1") {
		t.Error("expected request in new window to pass")
	}

	now = now.Add(2 * time.Minute)
	limiter.Cleanup()
	if n := limiter.Len(); n != 0 {
		t.Errorf("expected expired clients to be removed, got %d", n)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("request %d: expected %d, got %d", i, want, w.Code)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := GetClientIP(req); ip != "192.0.2.1:1234" {
		t.Errorf("expected RemoteAddr, got %q", ip)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if ip := GetClientIP(req); ip != "203.0.113.7" {
		t.Errorf("expected first forwarded IP, got %q", ip)
	}
}
