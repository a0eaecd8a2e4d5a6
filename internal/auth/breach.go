package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BreachChecker reports whether a password appears in a known breach corpus.
// An error means the corpus could not be consulted; it never means the
// password is safe.
type BreachChecker interface {
	Compromised(ctx context.Context, password string) (bool, error)
}

const DefaultBreachURL = "https://api.pwnedpasswords.com/range/"

// PwnedRangeChecker queries a Have I Been Pwned compatible range API. Only
// the first five hex characters of the SHA-1 digest leave the process; the
// suffix is compared locally.
type PwnedRangeChecker struct {
	baseURL string
	client  *http.Client
}

func NewPwnedRangeChecker(baseURL string, timeout time.Duration) *PwnedRangeChecker {
	if baseURL == "" {
		baseURL = DefaultBreachURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PwnedRangeChecker{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *PwnedRangeChecker) Compromised(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+prefix, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("breach range request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("breach range request: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		hash, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !strings.EqualFold(hash, suffix) {
			continue
		}
		// padded responses carry fake entries with a zero count
		if strings.TrimSpace(count) != "0" {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read breach range: %w", err)
	}
	return false, nil
}

// NoBreachCheck is used when the operator has turned the corpus check off.
type NoBreachCheck struct{}

func (NoBreachCheck) Compromised(context.Context, string) (bool, error) {
	return false, nil
}
