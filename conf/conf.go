package conf

import (
	"time"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
)

const (
	DefaultListenAddress            = "127.0.0.1:7880"
	DefaultMaxConcurrentFetches     = fetch.DefaultMaxConcurrentFetches
	DefaultFetchTimeout             = fetch.DefaultFetchTimeout
	DefaultMaxConnectionsPerAddress = 4
	DefaultMetricsBind              = "localhost:9102"

	DefaultNumReaders    = 4
	DefaultDocsPerReader = 1000

	DefaultDDProfilerHostEnvVarName = "DD_AGENT_HOST"
	DefaultDDProfilerPort           = 8126
	DefaultDDProfilerServiceName    = "docfetchd"
)

type Config struct {
	// Fetch service config
	ListenAddress   string   `help:"Address the fetch service listens on"`
	ReaderAddresses []string `help:"Addresses of fetch services to query" name:"reader-addresses"`

	// Generated readers served by this node
	NumReaders    int   `help:"Number of generated readers to serve"`
	DocsPerReader int   `help:"Number of documents in each generated reader"`
	FirstReaderID int   `help:"Id of the first generated reader, nodes must use disjoint ranges" name:"first-reader-id"`
	GenerateSeed  int64 `help:"Seed for generated document values"`

	// Fetch stage config
	MaxConcurrentFetches     int           `help:"Maximum reader fetches in flight for one query"`
	FetchTimeout             time.Duration `help:"Timeout for a single reader fetch"`
	RowCacheMaxEntries       int           `help:"Number of fetched rows to cache on the query side, 0 disables the cache"`
	MaxConnectionsPerAddress int           `help:"Connections kept to each fetch service address"`

	MetricsBind    string `help:"Bind address for Prometheus metrics." env:"METRICS_BIND"`
	MetricsEnabled bool   `help:"Expose Prometheus metrics"`

	// Datadog profiling
	DDProfilerTypes           string `help:"Comma separated Datadog profile types, e.g. CPU,HEAP. Empty disables the profiler"`
	DDProfilerHostEnvVarName  string `help:"Env var holding the Datadog agent host"`
	DDProfilerPort            int    `help:"Datadog agent port"`
	DDProfilerServiceName     string
	DDProfilerEnvironmentName string
	DDProfilerVersionName     string

	Original string `kong:"-"`
}

func (c *Config) ApplyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.NumReaders == 0 {
		c.NumReaders = DefaultNumReaders
	}
	if c.DocsPerReader == 0 {
		c.DocsPerReader = DefaultDocsPerReader
	}
	if c.MaxConcurrentFetches == 0 {
		c.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxConnectionsPerAddress == 0 {
		c.MaxConnectionsPerAddress = DefaultMaxConnectionsPerAddress
	}
	if c.MetricsBind == "" {
		c.MetricsBind = DefaultMetricsBind
	}
	if c.DDProfilerHostEnvVarName == "" {
		c.DDProfilerHostEnvVarName = DefaultDDProfilerHostEnvVarName
	}
	if c.DDProfilerPort == 0 {
		c.DDProfilerPort = DefaultDDProfilerPort
	}
	if c.DDProfilerServiceName == "" {
		c.DDProfilerServiceName = DefaultDDProfilerServiceName
	}
}

func (c *Config) Validate() error {
	if c.NumReaders < 0 {
		return errors.NewInvalidConfigurationError("num-readers must be >= 0")
	}
	if c.DocsPerReader < 0 {
		return errors.NewInvalidConfigurationError("docs-per-reader must be >= 0")
	}
	if c.FirstReaderID < 0 {
		return errors.NewInvalidConfigurationError("first-reader-id must be >= 0")
	}
	fetchConf := c.FetchConf()
	if err := fetchConf.Validate(); err != nil {
		return err
	}
	if c.RowCacheMaxEntries < 0 {
		return errors.NewInvalidConfigurationError("row-cache-max-entries must be >= 0")
	}
	if c.MaxConnectionsPerAddress < 1 {
		return errors.NewInvalidConfigurationError("max-connections-per-address must be > 0")
	}
	for _, address := range c.ReaderAddresses {
		if address == "" {
			return errors.NewInvalidConfigurationError("reader-addresses must not contain empty addresses")
		}
	}
	if c.MetricsEnabled && c.MetricsBind == "" {
		return errors.NewInvalidConfigurationError("metrics-bind must be specified if metrics-enabled is true")
	}
	if c.DDProfilerTypes != "" && (c.DDProfilerPort < 1 || c.DDProfilerPort > 65535) {
		return errors.NewInvalidConfigurationError("dd-profiler-port must be between 1 and 65535")
	}
	return nil
}

func (c *Config) FetchConf() fetch.Conf {
	return fetch.Conf{
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		FetchTimeout:         c.FetchTimeout,
	}
}
