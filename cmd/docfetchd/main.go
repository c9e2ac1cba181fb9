package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/conf"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/server"
)

const stopTimeout = 5 * time.Second

type arguments struct {
	Config     kong.ConfigFlag `help:"Path to config file" type:"existingfile"`
	LogConfig  bool            `help:"Print the config file before starting" name:"logconfig"`
	Server     conf.Config     `help:"Server configuration" embed:"" prefix:""`
	Log        log.Config      `help:"Configuration for the logger" embed:"" prefix:"log-"`
	CPUProfile string          `help:"Write a CPU profile to this file"`
	MemProfile string          `help:"Write a heap profile to this file on exit"`
}

func main() {
	defer common.PanicHandler()
	if err := mainWithError(os.Args[1:]); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func mainWithError(args []string) error {
	r := &runner{}
	cfg, err := r.loadConfig(args)
	if err != nil {
		return err
	}
	stopCPUProfile, err := startCPUProfile(cfg.CPUProfile)
	if err != nil {
		return err
	}
	defer stopCPUProfile()
	if err := r.run(&cfg.Server, true); err != nil {
		return err
	}
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-signals:
		log.Warnf("signal: %s received. docfetch server will be closed", sig)
		stopWithTimeout(r.server)
	case <-r.server.Done():
	}
	return writeHeapProfile(cfg.MemProfile)
}

func stopWithTimeout(s *server.Server) {
	timer := time.AfterFunc(stopTimeout, func() {
		log.Warn("server did not stop in time, exiting")
		os.Exit(1)
	})
	defer timer.Stop()
	if err := s.Stop(); err != nil {
		log.Warnf("failure in stopping docfetch server: %v", err)
	}
}

func startCPUProfile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}
	return func() {
		pprof.StopCPUProfile()
		if err := f.Close(); err != nil {
			log.Warnf("failed to close cpu profile: %v", err)
		}
	}, nil
}

func writeHeapProfile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}

type runner struct {
	server *server.Server
}

// loadConfig parses args, reading the HCL file named by --config. The raw file is kept in the server config.
func (r *runner) loadConfig(args []string) (*arguments, error) {
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, errors.WithStack(err)
	}
	if cfg.Config != "" {
		raw, err := os.ReadFile(string(cfg.Config))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		cfg.Server.Original = string(raw)
		if cfg.LogConfig {
			// the logger may not be usable if the config is bad
			fmt.Printf("docfetchd config file is:\n%s\n", raw)
		}
	}
	if err := cfg.Log.Configure(); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Server.ApplyDefaults()
	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *runner) run(cfg *conf.Config, start bool) error {
	s, err := server.NewServer(*cfg)
	if err != nil {
		return err
	}
	r.server = s
	if !start {
		return nil
	}
	return s.Start()
}

func (r *runner) getServer() *server.Server {
	return r.server
}
