package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

func (s *Server) maybeEnableDatadogProfiler() error {
	ddProfileTypes := s.conf.DDProfilerTypes
	if ddProfileTypes == "" {
		return nil
	}
	ddHost := os.Getenv(s.conf.DDProfilerHostEnvVarName)
	if ddHost == "" {
		return errors.NewInvalidConfigurationError(
			fmt.Sprintf("env var %s for DD profiler host is not set", s.conf.DDProfilerHostEnvVarName))
	}
	profileTypes, err := parseProfileTypes(ddProfileTypes)
	if err != nil {
		return err
	}
	agentAddress := fmt.Sprintf("%s:%d", ddHost, s.conf.DDProfilerPort)

	log.Debugf("starting Datadog continuous profiler with service name: %s environment %s version %s agent address %s profile types %s",
		s.conf.DDProfilerServiceName, s.conf.DDProfilerEnvironmentName, s.conf.DDProfilerVersionName, agentAddress, ddProfileTypes)

	if err := profiler.Start(
		profiler.WithService(s.conf.DDProfilerServiceName),
		profiler.WithEnv(s.conf.DDProfilerEnvironmentName),
		profiler.WithVersion(s.conf.DDProfilerVersionName),
		profiler.WithAgentAddr(agentAddress),
		profiler.WithProfileTypes(profileTypes...),
	); err != nil {
		return err
	}
	s.profilerStarted = true
	return nil
}

func (s *Server) maybeStopDatadogProfiler() error {
	if s.profilerStarted {
		profiler.Stop()
		s.profilerStarted = false
	}
	return nil
}

func parseProfileTypes(ddProfileTypes string) ([]profiler.ProfileType, error) {
	var profileTypes []profiler.ProfileType
	for _, sProfType := range strings.Split(ddProfileTypes, ",") {
		switch strings.ToUpper(strings.TrimSpace(sProfType)) {
		case "CPU":
			profileTypes = append(profileTypes, profiler.CPUProfile)
		case "HEAP":
			profileTypes = append(profileTypes, profiler.HeapProfile)
		case "BLOCK":
			profileTypes = append(profileTypes, profiler.BlockProfile)
		case "MUTEX":
			profileTypes = append(profileTypes, profiler.MutexProfile)
		case "GOROUTINE":
			profileTypes = append(profileTypes, profiler.GoroutineProfile)
		default:
			return nil, errors.NewInvalidConfigurationError(fmt.Sprintf("unknown Datadog profile type: %s", sProfType))
		}
	}
	return profileTypes, nil
}
