package conf

import (
	"testing"
	"time"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/stretchr/testify/require"
)

type configPair struct {
	errMsg string
	conf   Config
}

func invalidNumReadersConf() Config {
	cnf := validConf()
	cnf.NumReaders = -1
	return cnf
}

func invalidDocsPerReaderConf() Config {
	cnf := validConf()
	cnf.DocsPerReader = -10
	return cnf
}

func invalidFirstReaderIDConf() Config {
	cnf := validConf()
	cnf.FirstReaderID = -1
	return cnf
}

func invalidMaxConcurrentFetchesConf() Config {
	cnf := validConf()
	cnf.MaxConcurrentFetches = -1
	return cnf
}

func invalidFetchTimeoutConf() Config {
	cnf := validConf()
	cnf.FetchTimeout = -time.Second
	return cnf
}

func invalidRowCacheMaxEntriesConf() Config {
	cnf := validConf()
	cnf.RowCacheMaxEntries = -1
	return cnf
}

func invalidMaxConnectionsConf() Config {
	cnf := validConf()
	cnf.MaxConnectionsPerAddress = -1
	return cnf
}

func emptyReaderAddressConf() Config {
	cnf := validConf()
	cnf.ReaderAddresses = []string{"addr1", ""}
	return cnf
}

func metricsEnabledNoBindConf() Config {
	cnf := validConf()
	cnf.MetricsEnabled = true
	cnf.MetricsBind = ""
	return cnf
}

func invalidDDProfilerPortConf() Config {
	cnf := validConf()
	cnf.DDProfilerTypes = "CPU"
	cnf.DDProfilerPort = 70000
	return cnf
}

var invalidConfigs = []configPair{
	{"invalid configuration: num-readers must be >= 0", invalidNumReadersConf()},
	{"invalid configuration: docs-per-reader must be >= 0", invalidDocsPerReaderConf()},
	{"invalid configuration: first-reader-id must be >= 0", invalidFirstReaderIDConf()},
	{"invalid configuration: max-concurrent-fetches must be > 0", invalidMaxConcurrentFetchesConf()},
	{"invalid configuration: fetch-timeout must be >= 0", invalidFetchTimeoutConf()},
	{"invalid configuration: row-cache-max-entries must be >= 0", invalidRowCacheMaxEntriesConf()},
	{"invalid configuration: max-connections-per-address must be > 0", invalidMaxConnectionsConf()},
	{"invalid configuration: reader-addresses must not contain empty addresses", emptyReaderAddressConf()},
	{"invalid configuration: metrics-bind must be specified if metrics-enabled is true", metricsEnabledNoBindConf()},
	{"invalid configuration: dd-profiler-port must be between 1 and 65535", invalidDDProfilerPortConf()},
}

func TestValidate(t *testing.T) {
	for _, cp := range invalidConfigs {
		err := cp.conf.Validate()
		require.Error(t, err, "Didn't get error, expected: %s", cp.errMsg)
		//goland:noinspection GoTypeAssertionOnErrors
		pe, ok := errors.Cause(err).(errors.FetchError)
		require.True(t, ok)
		require.Equal(t, errors.InvalidConfiguration, pe.Code)
		require.Equal(t, cp.errMsg, pe.Msg)
	}
}

func TestValidConf(t *testing.T) {
	cnf := validConf()
	require.NoError(t, cnf.Validate())
}

func TestApplyDefaults(t *testing.T) {
	cnf := Config{}
	cnf.ApplyDefaults()
	require.Equal(t, DefaultListenAddress, cnf.ListenAddress)
	require.Equal(t, DefaultNumReaders, cnf.NumReaders)
	require.Equal(t, DefaultDocsPerReader, cnf.DocsPerReader)
	require.Equal(t, DefaultMaxConcurrentFetches, cnf.MaxConcurrentFetches)
	require.Equal(t, DefaultFetchTimeout, cnf.FetchTimeout)
	require.Equal(t, DefaultMaxConnectionsPerAddress, cnf.MaxConnectionsPerAddress)
	require.Equal(t, DefaultMetricsBind, cnf.MetricsBind)
	require.Equal(t, 0, cnf.RowCacheMaxEntries)
	require.Equal(t, DefaultDDProfilerHostEnvVarName, cnf.DDProfilerHostEnvVarName)
	require.Equal(t, DefaultDDProfilerPort, cnf.DDProfilerPort)
	require.Equal(t, "", cnf.DDProfilerTypes)
	require.NoError(t, cnf.Validate())

	// set values are kept
	cnf = Config{MaxConcurrentFetches: 3, FetchTimeout: time.Second, ListenAddress: "addr7"}
	cnf.ApplyDefaults()
	require.Equal(t, 3, cnf.MaxConcurrentFetches)
	require.Equal(t, time.Second, cnf.FetchTimeout)
	require.Equal(t, "addr7", cnf.ListenAddress)
}

func TestFetchConf(t *testing.T) {
	cnf := validConf()
	fetchConf := cnf.FetchConf()
	require.Equal(t, 10, fetchConf.MaxConcurrentFetches)
	require.Equal(t, 5*time.Second, fetchConf.FetchTimeout)
}

func validConf() Config {
	conf := Config{
		ListenAddress:        "addr1",
		ReaderAddresses:      []string{"addr4", "addr5", "addr6"},
		NumReaders:           3,
		DocsPerReader:        100,
		MaxConcurrentFetches: 10,
		FetchTimeout:         5 * time.Second,
		RowCacheMaxEntries:   1000,
	}
	conf.ApplyDefaults()
	return conf
}
