package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegisid/aegisid/pkg/identity"
)

func TestWhoamiEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	RegisterWhoamiEndpoint(s)

	t.Run("reports the authenticated operator", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", bearer(t, "alice", identity.RoleAdmin))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp WhoamiResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Login != "alice" {
			t.Errorf("expected login alice, got %q", resp.Login)
		}
		if resp.Role != identity.RoleAdmin {
			t.Errorf("expected role admin, got %q", resp.Role)
		}
		if resp.ClientIP == "" {
			t.Error("expected a client ip")
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)

		w := serveRequest(s, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})
}
