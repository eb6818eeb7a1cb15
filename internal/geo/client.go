package geo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// getJSON performs one GET and decodes the body into out. Every error it
// returns is a *Failure.
func getJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, op, endpoint string, header http.Header, out any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fail(op, FailureNetwork, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(op, FailureNetwork, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fail(op, FailureNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return fail(op, FailureStatus, &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(op, FailureMalformed, err)
	}
	return nil
}
