package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/yungbote/benefits-backend/internal/platform/apierr"
	"github.com/yungbote/benefits-backend/internal/platform/ctxutil"
)

const maxErrorBody = 4000

// Do sends body as JSON and decodes a 2xx answer into out. Non-2xx answers
// come back as *apierr.Error carrying the status. One attempt only; retries
// are the caller's concern.
func Do(ctx context.Context, hc *http.Client, method, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.RequestID != "" {
			req.Header.Set("X-Request-Id", td.RequestID)
		}
		if td.TraceID != "" {
			req.Header.Set("X-Trace-Id", td.TraceID)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return apierr.New(resp.StatusCode, http.StatusText(resp.StatusCode), fmt.Errorf("%s %s: http %d: %s", method, url, resp.StatusCode, msg))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}
