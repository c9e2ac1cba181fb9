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

package main

import (
	"os"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/docfetch/cli"
	"github.com/spirit-labs/docfetch/cmd/docfetch/commands"
	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/conf"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/metrics"
	"github.com/spirit-labs/docfetch/server"
	"github.com/spirit-labs/docfetch/transport"
)

const inProcessAddress = "in-process"

type arguments struct {
	Config  kong.ConfigFlag       `help:"Path to config file" type:"existingfile"`
	Client  conf.Config           `help:"Client configuration" embed:"" prefix:""`
	Log     log.Config            `help:"Configuration for the logger" embed:"" prefix:"log-"`
	Command string                `help:"Single statement to execute, non interactively"`
	Shell   commands.ShellCommand `embed:""`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(args []string) error {
	defer common.PanicHandler()
	cfg := &arguments{}
	parser, err := kong.New(cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := parser.Parse(args); err != nil {
		return errors.WithStack(err)
	}
	if err := cfg.Log.Configure(); err != nil {
		return err
	}
	cfg.Client.ApplyDefaults()
	if err := cfg.Client.Validate(); err != nil {
		return err
	}

	connFactory := transport.NewSocketClient().CreateConnection
	if len(cfg.Client.ReaderAddresses) == 0 {
		node, localFactory, err := startInProcessNode(cfg.Client)
		if err != nil {
			return err
		}
		defer stopQuietly("in-process server", node.Stop)
		cfg.Client.ReaderAddresses = []string{inProcessAddress}
		connFactory = localFactory
	}

	cl := cli.NewCli(cfg.Client, connFactory, metrics.DefaultFetchMetrics())
	cl.SetExitOnError(true)
	if err := cl.Start(); err != nil {
		return err
	}
	defer stopQuietly("cli", cl.Stop)
	if cfg.Command != "" {
		return cfg.Shell.SendStatement(cfg.Command, cl)
	}
	return cfg.Shell.Run(cl)
}

// startInProcessNode serves generated readers over a local transport, so the shell works without a docfetchd.
func startInProcessNode(cfg conf.Config) (*server.Server, transport.ConnectionFactory, error) {
	localTransports := transport.NewLocalTransports()
	localServer, err := localTransports.NewLocalServer(inProcessAddress)
	if err != nil {
		return nil, nil, err
	}
	node, err := server.NewServerWithTransport(cfg, localServer)
	if err != nil {
		return nil, nil, err
	}
	if err := node.Start(); err != nil {
		return nil, nil, err
	}
	return node, localTransports.CreateConnection, nil
}

func stopQuietly(name string, stop func() error) {
	if err := stop(); err != nil {
		log.Errorf("failed to stop %s %+v", name, err)
	}
}
