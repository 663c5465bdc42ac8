package authstatus

import (
	"context"
)

// handleSession is the provider callback. It records the session, clears
// Loading on the first call, clears fetched data when the session is absent and
// hands the session to the fetch loop.
func (c *Controller) handleSession(s Session) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	first := !c.observed
	c.observed = true
	c.state.Session = s
	c.state.Loading = false
	if s == nil {
		c.state.Payload = nil
		c.state.FetchError = ""
	}
	c.gen++
	update := sessionUpdate{gen: c.gen, session: s}

	select {
	case <-c.latest:
	default:
	}
	c.latest <- update

	c.publishLocked()
	c.mu.Unlock()

	ctx := context.Background()
	if s == nil {
		c.metrics.Inc(MetricSessionAbsent)
		c.logger.Info("session absent", "first", first)
		c.emitAudit(ctx, auditEventSessionAbsent, nil, true, nil, nil)
		c.navigateToLogin(ctx)
		return
	}

	c.metrics.Inc(MetricSessionPresent)
	c.logger.Info("session present", "user_id", s.UserID(), "first", first)
	c.emitAudit(ctx, auditEventSessionPresent, s, true, nil, nil)
}

func (c *Controller) navigateToLogin(ctx context.Context) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	path := c.cfg.LoginPath
	c.navigator.NavigateTo(path)
	c.metrics.Inc(MetricNavigation)
	c.logger.Info("navigated to login", "path", path)
	c.emitAudit(ctx, auditEventNavigate, nil, true, nil, func(e *AuditEvent) {
		e.Path = path
	})
}
