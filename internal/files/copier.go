// Package files copies uploaded basket files into the scope of an order.
package files

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-orderlines/internal/resilience"
)

// ErrCopyRejected is returned when the file service refuses the copy.
var ErrCopyRejected = errors.New("files: copy rejected")

const orderScope = "order"

type copyRequest struct {
	Ref   string `json:"ref"`
	Scope string `json:"scope"`
}

type copyResponse struct {
	Ref string `json:"ref"`
}

// HTTPCopier talks to the file service.
type HTTPCopier struct {
	HTTP    *resilience.HTTPClient
	BaseURL string
}

// CopyToOrderScope copies ref and returns the reference of the order-scoped copy.
func (c HTTPCopier) CopyToOrderScope(ctx context.Context, ref string) (string, error) {
	if c.HTTP == nil || c.BaseURL == "" {
		return "", errors.New("files: copier not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty file reference", ErrCopyRejected)
	}
	body, err := json.Marshal(copyRequest{Ref: ref, Scope: orderScope})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/files/copy", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("files: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("files: copy %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: %s: %s %s", ErrCopyRejected, ref, resp.Status, strings.TrimSpace(string(msg)))
	}
	var out copyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("files: decode copy response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("%w: %s: empty reference in response", ErrCopyRejected, ref)
	}
	return out.Ref, nil
}
