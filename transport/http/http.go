// Package http POSTs every message to <publisher url>/<topic>.
package http

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// DefaultTimeout bounds a single POST.
const DefaultTimeout = 10 * time.Second

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates an HTTP publisher. Endpoints answering 429 or 503 are treated
// as applying backpressure.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	base := strings.TrimRight(cfg.GetHTTPPublisherURL(), "/")
	if base == "" {
		return transport.Transport{}, fmt.Errorf("http: publisher URL is required")
	}

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(base+"/"+topic, msg)
			},
			Client: &nethttp.Client{
				Timeout:   DefaultTimeout,
				Transport: backpressureTransport{next: nethttp.DefaultTransport},
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:    publisher,
		Capabilities: Capabilities(),
	}, nil
}

// backpressureTransport turns throttling responses into ErrBackpressure so
// the sink retries the same payload instead of failing the run.
type backpressureTransport struct {
	next nethttp.RoundTripper
}

func (b backpressureTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	resp, err := b.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case nethttp.StatusTooManyRequests, nethttp.StatusServiceUnavailable:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s answered %s", pferrors.ErrBackpressure, req.URL.Host, resp.Status)
	}
	return resp, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
