package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doJSON issues a request with a JSON body (nil for none) and decodes a JSON
// response into target. Non-2xx responses come back as a classified
// *AuthError; transport failures as KindNetwork.
func (c *Client) doJSON(
	ctx context.Context,
	method, path string,
	payload, target any,
	bearer string,
	login bool,
) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp, respBody, login)
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return &AuthError{
			Kind:    KindProtocol,
			Status:  resp.StatusCode,
			Message: "undecodable response body",
			cause:   err,
		}
	}

	return nil
}
