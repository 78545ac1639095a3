package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/pulseflow/internal/runtime/codec"
	configpkg "github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/internal/runtime/driver"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/sink"
	"github.com/drblury/pulseflow/internal/runtime/source"
	transportpkg "github.com/drblury/pulseflow/internal/runtime/transport"
	"github.com/drblury/pulseflow/transport"
)

// StreamerDependencies holds optional collaborators. Leave fields nil to use
// what the configuration describes.
type StreamerDependencies struct {
	TransportFactory transportpkg.Factory
	// Source replaces the source built from Config.Source.
	Source source.Source
	// Codec replaces the codec named by Config.Codec.
	Codec codec.Codec
	// Topics overrides individual destination topics.
	Topics sink.Topics
	// Classifier decides which publish errors are backpressure.
	Classifier sink.Classifier
	Progress   driver.ProgressFunc
	Hooks      driver.RunHooks
	// Registry receives the publication metrics. When nil and metrics are
	// enabled, a private registry is created and served on MetricsPort.
	Registry *prometheus.Registry
}

// Streamer wires a broker transport, codec, source and retrying sink into a
// driver and streams runs according to its configuration.
type Streamer struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport transport.Transport
	publisher *sink.PublisherSink
	sink      *sink.RetryingSink
	driver    *driver.Driver
	metrics   *driver.Metrics
	registry  *prometheus.Registry

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server

	closeOnce sync.Once
	closeErr  error
}

// NewStreamer is TryNewStreamer for callers that treat setup errors as fatal.
func NewStreamer(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps StreamerDependencies) *Streamer {
	s, err := TryNewStreamer(ctx, conf, log, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewStreamer validates conf and builds every component. The transport is
// closed again when a later step fails.
func TryNewStreamer(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps StreamerDependencies) (*Streamer, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, pferrors.ErrLoggerRequired
	}

	log.Info("Creating streamer", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	enc := deps.Codec
	if enc == nil {
		var err error
		if enc, err = codec.ForName(conf.Codec); err != nil {
			return nil, err
		}
	}

	src := deps.Source
	if src == nil {
		var err error
		if src, err = BuildSource(conf); err != nil {
			return nil, err
		}
	}

	s := &Streamer{Conf: conf, Logger: log}

	if conf.MetricsEnabled || deps.Registry != nil {
		s.registry = deps.Registry
		if s.registry == nil {
			s.registry = prometheus.NewRegistry()
		}
		s.metrics = driver.NewMetrics(s.registry)
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		if conf.MetricsEnabled && conf.MetricsPort > 0 {
			s.RegisterHTTPHandler(conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		}
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	tr, err := factory.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	s.transport = tr

	if err := s.wire(src, enc, deps); err != nil {
		if cerr := tr.Publisher.Close(); cerr != nil {
			log.Error("Failed to close transport after setup error", cerr, nil)
		}
		return nil, err
	}
	return s, nil
}

func (s *Streamer) wire(src source.Source, enc codec.Codec, deps StreamerDependencies) error {
	conf := s.Conf

	prefix := conf.TopicPrefix
	if prefix == "" {
		prefix = conf.Instrument
	}
	pub, err := sink.NewPublisherSink(s.transport.Publisher, sink.PublisherSinkConfig{
		Topics:       sink.DefaultTopics(prefix).With(deps.Topics),
		Capabilities: s.transport.Capabilities,
		Classifier:   deps.Classifier,
	}, s.Logger)
	if err != nil {
		return err
	}
	s.publisher = pub

	retrying, err := sink.NewRetryingSink(pub, sink.RetryConfig{
		Wait:        conf.RetryWait,
		LogInterval: conf.RetryLogInterval,
		OnRetry:     s.metrics.ObserveRetry,
	}, s.Logger)
	if err != nil {
		return err
	}
	s.sink = retrying

	d, err := driver.New(src, retrying, enc, driver.Options{
		Instrument:       conf.Instrument,
		MessagesPerFrame: conf.MessagesPerFrame,
		Paced:            conf.Paced,
		FrameRate:        conf.FrameRate,
		InterRunPause:    conf.InterRunPause,
		ReportInterval:   conf.ReportInterval,
		Quiet:            conf.Quiet,
		Progress:         deps.Progress,
		Hooks:            deps.Hooks,
		Metrics:          s.metrics,
	}, s.Logger)
	if err != nil {
		return err
	}
	s.driver = d
	return nil
}

// BuildSource creates the frame source described by conf.
func BuildSource(conf *configpkg.Config) (source.Source, error) {
	switch strings.ToLower(conf.Source) {
	case "", "synthetic":
		return source.NewSynthetic(source.SyntheticConfig{
			Frames:          conf.Synthetic.Frames,
			EventsPerFrame:  conf.Synthetic.EventsPerFrame,
			MaxDetectorID:   conf.Synthetic.MaxDetectorID,
			MaxTimeOfFlight: conf.Synthetic.MaxTimeOfFlight,
			ProtonCharge:    conf.Synthetic.ProtonCharge,
			Seed:            conf.Synthetic.Seed,
		})
	case "file":
		return source.LoadFile(conf.SourceFile)
	default:
		return nil, fmt.Errorf("unknown source %q", conf.Source)
	}
}

// Start streams a single run, or runs RunNumber, RunNumber+1, ... until ctx
// is cancelled. Cancellation is not an error.
func (s *Streamer) Start(ctx context.Context) ([]driver.RunStatistics, error) {
	defer s.stopHTTPServers()
	if err := s.startHTTPServers(); err != nil {
		return nil, err
	}

	if !s.Conf.SingleRun {
		return s.driver.Repeat(ctx, s.Conf.RunNumber)
	}

	stats, err := s.driver.StreamRun(ctx, s.Conf.RunNumber, s.Conf.MessagesPerFrame, s.Conf.Paced)
	if err != nil && ctx.Err() != nil && (errors.Is(err, pferrors.ErrRunCancelled) || errors.Is(err, ctx.Err())) {
		err = nil
	}
	return []driver.RunStatistics{stats}, err
}

// Driver exposes the underlying driver, for AddPeriodic and Snapshot.
func (s *Streamer) Driver() *driver.Driver { return s.driver }

// Capabilities reports what the configured transport supports.
func (s *Streamer) Capabilities() transport.Capabilities { return s.transport.Capabilities }

// Sink is the retrying sink every record goes through.
func (s *Streamer) Sink() *sink.RetryingSink { return s.sink }

// Registry holds the publication metrics, or nil when metrics are off.
func (s *Streamer) Registry() *prometheus.Registry { return s.registry }

// Close flushes pending output and closes the transport. It is safe to call
// more than once.
func (s *Streamer) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.sink.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Start.
func (s *Streamer) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Streamer) startHTTPServers() error {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.running = append(s.running, srv)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": addr})
			}
		}()
	}
	return nil
}

func (s *Streamer) stopHTTPServers() {
	s.httpServersMu.Lock()
	running := s.running
	s.running = nil
	s.httpServersMu.Unlock()

	for _, srv := range running {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to stop HTTP server", err, nil)
		}
		cancel()
	}
}
