package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sorcha-network/sorcha/internal/daemon"
)

// apiAddr is the --addr persistent flag; empty means "read the config".
var apiAddr string

var httpClient = &http.Client{Timeout: 10 * time.Second}

// baseURL resolves the admin API base URL from the flag or local config.
func baseURL() (string, error) {
	if apiAddr != "" {
		return "http://" + apiAddr, nil
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port), nil
}

// apiGet fetches path and decodes the JSON response into out.
func apiGet(path string, out interface{}) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	return decodeResponse(resp, out)
}

// apiPost sends body as JSON to path and decodes the response into out.
// Both body and out may be nil.
func apiPost(path string, body, out interface{}) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := httpClient.Post(base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	return decodeResponse(resp, out)
}

// apiDelete issues a DELETE to path.
func apiDelete(path string) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodDelete, base+path, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	return decodeResponse(resp, nil)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
