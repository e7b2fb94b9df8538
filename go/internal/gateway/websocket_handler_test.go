package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestConnectionStatsAccess(t *testing.T) {
	cm, srv := newFeedServer(t)
	sessionID := uuid.NewString()
	dial(t, srv, sessionID)
	waitForConnections(t, cm, 1)

	get := func(token string) (*http.Response, ConnectionStats) {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/stats", nil)
		if err != nil {
			t.Fatal(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var stats ConnectionStats
		if resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				t.Fatal(err)
			}
		}
		return resp, stats
	}

	if resp, _ := get(""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", resp.StatusCode)
	}

	resp, stats := get("user:" + uuid.NewString())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user status = %d", resp.StatusCode)
	}
	if stats.TotalConnections != 1 || stats.ScopeCount != 1 || stats.Scopes != nil {
		t.Errorf("user stats = %+v, want counts only", stats)
	}

	_, stats = get("admin:" + uuid.NewString())
	if stats.Scopes[sessionID] != 1 {
		t.Errorf("admin stats = %+v, want the %s scope listed", stats, sessionID)
	}
}
