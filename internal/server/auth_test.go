package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		apiKey    string
		header    string
		wantCode  int
		wantError bool
	}{
		{name: "disabled", apiKey: "", header: "", wantCode: http.StatusOK},
		{name: "missing header", apiKey: "secret", header: "", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", apiKey: "secret", header: "Basic c2VjcmV0", wantCode: http.StatusUnauthorized},
		{name: "empty token", apiKey: "secret", header: "Bearer   ", wantCode: http.StatusUnauthorized},
		{name: "wrong token", apiKey: "secret", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantError: true},
		{name: "valid token", apiKey: "secret", header: "Bearer secret", wantCode: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantCode: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := authMiddleware(tc.apiKey, okHandler)
			req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d", w.Code, tc.wantCode)
			}
			if tc.wantCode != http.StatusUnauthorized {
				return
			}
			challenge := w.Header().Get("WWW-Authenticate")
			if !strings.HasPrefix(challenge, "Bearer") {
				t.Errorf("WWW-Authenticate: got %q", challenge)
			}
			if got := strings.Contains(challenge, "invalid_token"); got != tc.wantError {
				t.Errorf("invalid_token in challenge: got %v, want %v", got, tc.wantError)
			}
		})
	}
}

func TestAuthMiddleware_DoesNotEchoToken(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	req.Header.Set("Authorization", "Bearer leaked-value")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "leaked-value") {
		t.Errorf("response body echoes the token: %q", w.Body.String())
	}
}
