// Package adapters implements the Service Adapters (C7): small HTTP clients
// the saga coordinator uses to talk to the Sample, Storage, and Notification
// services, grounded on spec.md §4.7 and the wire contracts in §6.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/tracseq/lims-core/pkg/constant"
)

// Config holds the base URLs the adapters dial. None of these participate in
// the core algorithms (spec.md §6 "Environment variables ... None
// participate in the core algorithms"), only in where a request lands.
type Config struct {
	SampleServiceURL       string
	StorageServiceURL      string
	NotificationServiceURL string
	Timeout                time.Duration
}

// client is the shared fasthttp-backed transport every adapter embeds,
// a pooled outbound HTTP client (see DESIGN.md for why this dependency
// is grounded on a different use of the same library elsewhere in the
// retrieved example set).
type client struct {
	http    *fasthttp.Client
	timeout time.Duration
}

func newClient(timeout time.Duration) *client {
	return &client{
		http: &fasthttp.Client{
			MaxConnsPerHost: 64,
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
		},
		timeout: timeout,
	}
}

// do issues method against url with transaction id txnID attached as the
// X-Transaction-ID header (spec.md §4.6 "Every step and compensation is
// called with the transaction_id as a correlation header"), marshaling body
// (if non-nil) as the JSON request payload and unmarshaling a non-empty
// response body into out (if non-nil).
func (c *client) do(ctx context.Context, method, url string, txnID uuid.UUID, body, out any) (status int, err error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("X-Transaction-ID", txnID.String())
	req.Header.Set("Content-Type", "application/json")

	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return 0, fmt.Errorf("adapters: marshal request: %w", marshalErr)
		}

		req.SetBody(payload)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	doErr := c.http.DoTimeout(req, resp, timeout)
	if doErr != nil {
		return 0, constant.New(constant.KindServiceCommunicationFailed, "adapter",
			fmt.Sprintf("%s %s: %v", method, url, doErr))
	}

	status = resp.StatusCode()

	if classifyErr := classifyStatus(method, url, status); classifyErr != nil {
		return status, classifyErr
	}

	if out != nil && len(resp.Body()) > 0 {
		if unmarshalErr := json.Unmarshal(resp.Body(), out); unmarshalErr != nil {
			return status, fmt.Errorf("adapters: unmarshal response from %s: %w", url, unmarshalErr)
		}
	}

	return status, nil
}

// classifyStatus maps an HTTP status to the saga error taxonomy per
// spec.md §4.7: network/timeout -> ServiceCommunicationFailed (retryable);
// 4xx -> non-retryable validation; 5xx -> retryable; 404 on a compensation
// path is the caller's responsibility to treat as success (it still comes
// back here as an error so compensation callers can special-case it).
func classifyStatus(method, url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 404:
		return constant.New(constant.KindNotFound, "adapter",
			fmt.Sprintf("%s %s: not found", method, url))
	case status >= 400 && status < 500:
		return constant.New(constant.KindValidation, "adapter",
			fmt.Sprintf("%s %s: status %d", method, url, status))
	case status >= 500:
		return constant.New(constant.KindServiceCommunicationFailed, "adapter",
			fmt.Sprintf("%s %s: status %d", method, url, status))
	default:
		return constant.New(constant.KindInternal, "adapter",
			fmt.Sprintf("%s %s: unexpected status %d", method, url, status))
	}
}

// isNotFound reports whether err is the adapter's NotFound classification,
// the signal compensation callers use to treat a 404 as "already gone".
func isNotFound(err error) bool {
	return constant.KindOf(err) == constant.KindNotFound
}

// health probes baseURL+"/health" (spec.md §4.7: "each exposes ... health
// probes"), with no transaction correlation since a health check belongs to
// no saga instance.
func (c *client) health(ctx context.Context, baseURL string) error {
	_, err := c.do(ctx, "GET", baseURL+"/health", uuid.Nil, nil, nil)
	return err
}
