package authstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// run is the fetch loop. Each session update starts one fetch goroutine; with
// CancelSuperseded the previous one is cancelled first.
func (c *Controller) run(ctx context.Context) {
	defer close(c.loopDone)

	var cancelInflight context.CancelFunc
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-c.latest:
			if cancelInflight != nil && c.cfg.CancelSuperseded {
				cancelInflight()
			}
			cancelInflight = nil
			if update.session == nil {
				continue
			}

			fetchCtx, cancel := context.WithCancel(ctx)
			cancelInflight = cancel
			c.fetchWG.Add(1)
			go func() {
				defer c.fetchWG.Done()
				defer cancel()
				c.fetch(fetchCtx, update)
			}()
		}
	}
}

func (c *Controller) fetch(ctx context.Context, update sessionUpdate) {
	ctx, span := c.tracer.Start(ctx, "authstatus.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authstatus.endpoint", c.endpoint),
			attribute.String("authstatus.user_id", update.session.UserID()),
		),
	)
	defer span.End()

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	c.metrics.Inc(MetricFetchStarted)
	start := time.Now()
	payload, err := c.request(ctx, update.session)
	c.metrics.Observe(MetricFetchLatency, time.Since(start))

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", fetchErr.Status))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fetchErr.Kind))
	}

	c.apply(update, payload, fetchErr)
}

// request obtains a credential and performs the GET. Every failure is returned
// as a *FetchError.
func (c *Controller) request(ctx context.Context, s Session) (json.RawMessage, error) {
	token, err := s.Credential(ctx)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorCredential, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorTransport, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := readLimited(resp.Body, c.cfg.MaxResponseBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind:    FetchErrorStatus,
			Status:  resp.StatusCode,
			Message: errorMessage(body, readErr),
		}
	}
	if readErr != nil {
		return nil, &FetchError{Kind: FetchErrorDecode, Status: resp.StatusCode, Err: readErr}
	}

	var payload json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Kind: FetchErrorDecode, Status: resp.StatusCode, Err: err}
	}
	return payload, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return body, nil
}

// errorMessage extracts {"message": "..."} from an error body.
func errorMessage(body []byte, readErr error) string {
	if readErr != nil || len(body) == 0 {
		return DefaultFetchErrorMessage
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == "" {
		return DefaultFetchErrorMessage
	}
	return payload.Message
}

// apply stores a fetch outcome unless a newer session arrived or the controller
// closed in the meantime.
func (c *Controller) apply(update sessionUpdate, payload json.RawMessage, fetchErr *FetchError) {
	ctx := context.Background()

	c.mu.Lock()
	if c.closed || update.gen != c.gen {
		c.mu.Unlock()
		c.metrics.Inc(MetricFetchSuperseded)
		c.logger.Debug("discarding superseded fetch", "user_id", update.session.UserID())
		c.emitAudit(ctx, auditEventFetchSuperseded, update.session, false, nil, nil)
		return
	}

	if fetchErr == nil {
		c.state.Payload = payload
		c.state.FetchError = ""
	} else {
		c.state.FetchError = fetchErr.Error()
		if c.cfg.ClearPayloadOnError {
			c.state.Payload = nil
		}
	}
	c.publishLocked()
	c.mu.Unlock()

	if fetchErr == nil {
		c.metrics.Inc(MetricFetchSuccess)
		c.emitAudit(ctx, auditEventFetchSuccess, update.session, true, nil, func(e *AuditEvent) {
			e.Path = c.endpoint
		})
		return
	}

	c.metrics.Inc(failureMetric(fetchErr.Kind))
	c.logger.Error("error fetching protected data",
		"error", fetchErr,
		"kind", string(fetchErr.Kind),
		"status", fetchErr.Status,
		"user_id", update.session.UserID(),
	)
	c.emitAudit(ctx, auditEventFetchFailure, update.session, false, fetchErr, func(e *AuditEvent) {
		e.Path = c.endpoint
		e.Status = fetchErr.Status
		e.Metadata = map[string]string{"kind": string(fetchErr.Kind)}
	})
}

func failureMetric(kind FetchErrorKind) MetricID {
	switch kind {
	case FetchErrorCredential:
		return MetricFetchCredentialFailure
	case FetchErrorStatus:
		return MetricFetchStatusFailure
	case FetchErrorDecode:
		return MetricFetchDecodeFailure
	default:
		return MetricFetchTransportFailure
	}
}
