package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiClientTimeout bounds one CLI request against the local server.
const apiClientTimeout = 2 * time.Second

// apiGet fetches a server endpoint and decodes the JSON envelope into out.
func apiGet(port int, path string, out any) error {
	client := &http.Client{Timeout: apiClientTimeout}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d%s", port, path))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

// apiPost posts to a server endpoint and decodes the JSON envelope into out.
// The timeout is generous because cleanup runs a full eviction pass inline.
func apiPost(port int, path string, out any) error {
	client := &http.Client{Timeout: time.Minute}

	resp, err := client.Post(fmt.Sprintf("http://localhost:%d%s", port, path), "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
