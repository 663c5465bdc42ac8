package authstatus

import (
	"errors"
	"log/slog"
	"net/http"

	internalaudit "github.com/MrEthical07/authstatus/internal/audit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/authstatus"

// Builder assembles a [Controller] from its capabilities.
//
// Builder instances are single use: Build may only succeed once.
type Builder struct {
	config Config

	provider  SessionProvider
	navigator Navigator
	client    HTTPDoer
	logger    *slog.Logger
	auditSink AuditSink
	tracing   trace.TracerProvider

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSessionProvider sets the source of session transitions. Required.
func (b *Builder) WithSessionProvider(p SessionProvider) *Builder {
	b.provider = p
	return b
}

// WithNavigator sets where login redirects go. Required.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithHTTPClient overrides the client used for protected-data requests.
func (b *Builder) WithHTTPClient(client HTTPDoer) *Builder {
	b.client = client
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables audit delivery.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithTracerProvider sets the provider for fetch spans. Defaults to the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracing = tp
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the fetch latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an unstarted Controller.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.provider == nil {
		return nil, ErrNilProvider
	}
	if b.navigator == nil {
		return nil, ErrNilNavigator
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := b.client
	if client == nil {
		client = &http.Client{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default().With("component", "authstatus")
	}
	tp := b.tracing
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Controller{
		cfg:       cfg,
		endpoint:  cfg.endpointURL(),
		provider:  b.provider,
		navigator: b.navigator,
		client:    client,
		logger:    logger,
		metrics:   NewMetrics(cfg.Metrics),
		tracer:    tp.Tracer(tracerName),
		state:     State{Loading: true},
		latest:    make(chan sessionUpdate, 1),
		watchers:  make(map[uint64]chan State),
	}
	c.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return c, nil
}
