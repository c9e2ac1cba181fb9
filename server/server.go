// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"
	"time"

	"github.com/spirit-labs/docfetch/conf"
	"github.com/spirit-labs/docfetch/docstore"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/fetchsvc"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/metrics"
	"github.com/spirit-labs/docfetch/transport"
)

// Server is a fetch node. It generates a store of readers and serves them through the fetch service.
type Server struct {
	lock            sync.Mutex
	conf            conf.Config
	store           *docstore.Store
	transportServer transport.Server
	metricsServer   *metrics.Server
	profilerStarted bool
	started         bool
	stopped         bool
	done            chan struct{}
}

type component struct {
	name string
	start func() error
	stop  func() error
}

func NewServer(config conf.Config) (*Server, error) {
	return NewServerWithTransport(config, transport.NewSocketTransportServer(config.ListenAddress))
}

// NewServerWithTransport creates a server that serves on transportServer instead of a socket server.
func NewServerWithTransport(config conf.Config, transportServer transport.Server) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := docstore.Generate(docstore.GenerateOpts{
		NumReaders:    config.NumReaders,
		DocsPerReader: config.DocsPerReader,
		FirstReaderID: fetch.ReaderID(config.FirstReaderID),
		Seed:          config.GenerateSeed,
	})
	if err != nil {
		return nil, err
	}
	fetchService, err := fetchsvc.NewService(store)
	if err != nil {
		return nil, err
	}
	if err := fetchService.RegisterHandlers(transportServer); err != nil {
		return nil, err
	}
	return &Server{
		conf:            config,
		store:           store,
		transportServer: transportServer,
		metricsServer:   metrics.NewServer(config.MetricsBind, !config.MetricsEnabled),
		done:            make(chan struct{}),
	}, nil
}

// components are started in order and stopped in reverse.
func (s *Server) components() []component {
	return []component{
		{name: "profiler", start: s.maybeEnableDatadogProfiler, stop: s.maybeStopDatadogProfiler},
		{name: "metrics", start: s.metricsServer.Start, stop: s.metricsServer.Stop},
		{name: "transport", start: s.transportServer.Start, stop: s.transportServer.Stop},
	}
}

// Start starts the server. If a component fails to start the ones already started are stopped again.
func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return errors.New("server cannot be restarted")
	}
	if s.started {
		return nil
	}
	comps := s.components()
	for i, c := range comps {
		start := time.Now()
		if err := c.start(); err != nil {
			stopAll(comps[:i])
			return errors.Wrapf(err, "failed to start %s", c.name)
		}
		log.Debugf("started %s in %d ms", c.name, time.Since(start).Milliseconds())
	}
	s.started = true
	log.Infof("docfetch server started on %s serving %d readers", s.transportServer.Address(),
		len(s.store.ReaderIDs()))
	return nil
}

// Stop stops the server and closes the channel returned by Done. Calling it more than once is a no-op.
func (s *Server) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	defer close(s.done)
	if !s.started {
		return nil
	}
	if err := stopAll(s.components()); err != nil {
		return err
	}
	log.Info("docfetch server stopped")
	return nil
}

func stopAll(comps []component) error {
	var firstErr error
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].stop(); err != nil {
			log.Warnf("failed to stop %s: %v", comps[i].name, err)
			if firstErr == nil {
				firstErr = errors.WithStack(err)
			}
		}
	}
	return firstErr
}

// Done is closed once the server has been stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) GetConfig() conf.Config {
	return s.conf
}

func (s *Server) GetStore() *docstore.Store {
	return s.store
}

func (s *Server) Address() string {
	return s.transportServer.Address()
}
