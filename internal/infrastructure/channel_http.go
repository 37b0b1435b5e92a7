package infrastructure

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatdesk/internal/entities"
)

const maxErrorBody = 4 << 10

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// postJSON sends payload and classifies the response. 4xx other than 408
// and 429 are permanent; everything else that fails is retryable.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", entities.ErrPermanentSend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", entities.ErrPermanentSend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if isPermanentStatus(resp.StatusCode) {
		return fmt.Errorf("%w: status %d: %s", entities.ErrPermanentSend, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// SignBody returns the hex HMAC-SHA256 of body.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHexSignature compares a hex signature (optionally "sha256="
// prefixed) against the HMAC of body in constant time.
func verifyHexSignature(secret, header string, body []byte) bool {
	if secret == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
