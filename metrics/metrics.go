package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
)

type Server struct {
	bindAddress string
	address     string
	listener    net.Listener
	gatherer    prometheus.Gatherer
	httpServer  *http.Server
	dummy       bool
}

type metricServer struct {
	gatherer prometheus.Gatherer
}

func (ms *metricServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(ms.gatherer, promhttp.HandlerOpts{
			DisableCompression: true,
		}),
	).ServeHTTP(w, r)
}

// NewServer creates a server exposing /metrics on bindAddress. A dummy server does nothing on Start and Stop, it is
// used when metrics are disabled so callers don't need to branch.
func NewServer(bindAddress string, dummy bool) *Server {
	if dummy {
		return &Server{dummy: true}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", &metricServer{gatherer: prometheus.DefaultGatherer})
	return &Server{
		bindAddress: bindAddress,
		httpServer: &http.Server{
			Addr:    bindAddress,
			Handler: mux,
		},
	}
}

func (s *Server) Start() error {
	if s.dummy {
		return nil
	}
	listener, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return errors.WithStack(err)
	}
	s.listener = listener
	s.address = listener.Addr().String()
	common.Go(func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("prometheus http export server failed %v", err)
		}
	})
	log.Debugf("started prometheus http server on address %s", s.address)
	return nil
}

// Address is the address the server listens on once started.
func (s *Server) Address() string {
	return s.address
}

func (s *Server) Stop() error {
	if s.dummy || s.listener == nil {
		return nil
	}
	err := s.httpServer.Close()
	// Serve may not have taken ownership of the listener yet
	if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) && err == nil {
		err = lerr
	}
	return errors.WithStack(err)
}
