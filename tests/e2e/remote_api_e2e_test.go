//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRemoteAPI_MainEndpoints(t *testing.T) {
	baseURL := strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/")
	partition := envOr("E2E_PARTITION", "overworld")
	player := envOr("E2E_PLAYER", "e2e-player")
	client := &http.Client{Timeout: 20 * time.Second}
	api := baseURL + "/api/partitions/" + partition

	t.Run("unknown command is rejected", func(t *testing.T) {
		status, body := mustJSON(t, client, http.MethodPost, api+"/commands/launch_rocket", "", map[string]any{})
		if status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", status, string(body))
		}
	})

	// Spread runs far apart so repeated e2e runs never collide on territory.
	x := int(time.Now().Unix()%30000) * 1000
	var townID string

	t.Run("create and read town", func(t *testing.T) {
		status, body := mustJSON(t, client, http.MethodPost, api+"/commands/create_town", player, map[string]any{
			"name":      fmt.Sprintf("Eetown%d", x/1000),
			"position":  map[string]any{"x": x, "y": 64, "z": 0},
			"resources": map[string]any{"wheat": 10},
		})
		if status != http.StatusOK {
			t.Fatalf("create_town status=%d body=%s", status, string(body))
		}
		var created map[string]any
		if err := json.Unmarshal(body, &created); err != nil {
			t.Fatalf("unmarshal create: %v body=%s", err, string(body))
		}
		townID, _ = asMap(created["result"])["id"].(string)
		if townID == "" {
			t.Fatalf("missing town id in %s", string(body))
		}

		status, body = mustJSON(t, client, http.MethodGet, api+"/towns/"+townID, "", nil)
		if status != http.StatusOK {
			t.Fatalf("get town status=%d body=%s", status, string(body))
		}
		var view map[string]any
		if err := json.Unmarshal(body, &view); err != nil {
			t.Fatalf("unmarshal town: %v", err)
		}
		if asMap(view["resources"])["wheat"] != float64(10) {
			t.Fatalf("expected wheat=10 in %s", string(body))
		}
	})

	t.Run("market and history", func(t *testing.T) {
		if townID == "" {
			t.Skip("town not created")
		}
		status, body := mustJSON(t, client, http.MethodPost, api+"/commands/post_sell", player, map[string]any{
			"town_id": townID, "resource": "wheat", "quantity": 4, "price": 2,
		})
		if status != http.StatusOK {
			t.Fatalf("post_sell status=%d body=%s", status, string(body))
		}
		status, body = mustJSON(t, client, http.MethodGet, api+"/contracts?kind=sell", "", nil)
		if status != http.StatusOK {
			t.Fatalf("contracts status=%d body=%s", status, string(body))
		}
		var listed map[string]any
		if err := json.Unmarshal(body, &listed); err != nil {
			t.Fatalf("unmarshal contracts: %v", err)
		}
		if len(asSlice(listed["contracts"])) == 0 {
			t.Fatalf("expected at least one sell contract")
		}

		status, body = mustJSON(t, client, http.MethodGet, baseURL+"/api/towns/"+townID+"/history?limit=10", "", nil)
		if status != http.StatusOK {
			t.Fatalf("history status=%d body=%s", status, string(body))
		}
	})

	t.Run("ops kpi", func(t *testing.T) {
		status, body := mustJSON(t, client, http.MethodGet, baseURL+"/ops/kpi", "", nil)
		if status != http.StatusOK {
			t.Fatalf("kpi status=%d body=%s", status, string(body))
		}
		var kpi map[string]any
		if err := json.Unmarshal(body, &kpi); err != nil {
			t.Fatalf("unmarshal kpi: %v", err)
		}
		if _, ok := kpi["command_total"]; !ok {
			t.Fatalf("expected command_total in kpi response")
		}
	})
}

func mustJSON(t *testing.T, client *http.Client, method, url, playerID string, body map[string]any) (int, []byte) {
	t.Helper()
	status, respBody, err := doRequest(client, method, url, playerID, body)
	if err != nil {
		t.Fatalf("%s %s request failed: %v", method, url, err)
	}
	return status, respBody
}

func doRequest(client *http.Client, method, url, playerID string, body map[string]any) (int, []byte, error) {
	var payloadBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		payloadBytes = b
	}

	var lastStatus int
	var lastBody []byte
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var payload io.Reader
		if len(payloadBytes) > 0 {
			payload = bytes.NewReader(payloadBytes)
		}
		req, err := http.NewRequest(method, url, payload)
		if err != nil {
			return 0, nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if strings.TrimSpace(playerID) != "" {
			req.Header.Set("X-Player-ID", playerID)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
			continue
		}
		lastStatus, lastBody, lastErr = resp.StatusCode, respBody, nil
		if resp.StatusCode >= 500 {
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
			continue
		}
		return resp.StatusCode, respBody, nil
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return lastStatus, lastBody, nil
}

func envOr(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}
