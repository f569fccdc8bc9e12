package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/calder-labs/webbase/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func csrfRouter(surface middlewares.Surface, sessionToken string) *gin.Engine {
	r := gin.New()

	seed := func(c *gin.Context) {
		if sessionToken != "" {
			c.Set(middlewares.CtxCSRFToken, sessionToken)
		}
	}

	handle := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	r.GET("/thing", seed, middlewares.VerifyCSRF(surface), handle)
	r.POST("/thing", seed, middlewares.VerifyCSRF(surface), handle)

	return r
}

func TestVerifyCSRF(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		session    string
		header     string
		form       string
		wantStatus int
	}{
		{
			name:       "get passes without token",
			method:     http.MethodGet,
			session:    "tok",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "post with matching header",
			method:     http.MethodPost,
			session:    "tok",
			header:     "tok",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "post with matching form field",
			method:     http.MethodPost,
			session:    "tok",
			form:       "tok",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "post with wrong token",
			method:     http.MethodPost,
			session:    "tok",
			header:     "nope",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "post with no token at all",
			method:     http.MethodPost,
			session:    "tok",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "post with no session token on context",
			method:     http.MethodPost,
			session:    "",
			header:     "tok",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := csrfRouter(middlewares.SurfaceAPI, tt.session)

			var req *http.Request
			if tt.form != "" {
				body := url.Values{"_csrf": {tt.form}}.Encode()
				req = httptest.NewRequest(tt.method, "/thing", strings.NewReader(body))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				req = httptest.NewRequest(tt.method, "/thing", nil)
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestVerifyCSRFHTMLSurface(t *testing.T) {
	r := csrfRouter(middlewares.SurfaceHTML, "tok")

	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		t.Errorf("HTML surface should not respond with JSON, got Content-Type %q", ct)
	}
}
