//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// tools installed on demand, by binary name
var tools = map[string]string{
	"gotestsum":     "gotest.tools/gotestsum",
	"golangci-lint": "github.com/golangci/golangci-lint/cmd/golangci-lint",
	"addlicense":    "github.com/google/addlicense",
}

var (
	goCmd  = mg.GoCmd()
	banner = lipgloss.NewStyle().Bold(true)
)

func announce(format string, args ...any) {
	fmt.Println(banner.Render(fmt.Sprintf(format, args...)))
}

func installTools() error {
	for bin, pkg := range tools {
		if _, err := exec.LookPath(bin); err == nil {
			continue
		}
		announce("> %s install %s", goCmd, pkg)
		if err := sh.RunV(goCmd, "install", pkg); err != nil {
			return err
		}
	}
	return nil
}

func gotestsum(timeout time.Duration, pkgs ...string) []string {
	args := []string{"-f", "standard-verbose", "--", "-race", "-failfast", "-count", "1", "-timeout", timeout.String()}
	return append(args, pkgs...)
}

// Build compiles every package and command into bin/
func Build() error {
	announce("building")
	return sh.RunV(goCmd, "build", "-o", "bin", "./...")
}

// Lint runs golangci-lint
func Lint() error {
	mg.Deps(installTools)
	announce("linting")
	return sh.RunV("golangci-lint", "run")
}

// Test runs the unit tests with the race detector
func Test() error {
	mg.Deps(installTools)
	announce("testing")
	return sh.RunV("gotestsum", gotestsum(10*time.Minute, "./...")...)
}

// LicenseCheck adds the license header where it is missing
func LicenseCheck() error {
	mg.Deps(installTools)
	return sh.RunV("addlicense", "-c", "The Tektite Authors", "-ignore", "**/*.conf", ".")
}

// Presubmit runs LicenseCheck, Build and Lint, then the tests
func Presubmit() error {
	mg.SerialDeps(LicenseCheck, Build, Lint)
	return Test()
}

// Soak repeats the fetch and transport tests until one fails, appending output to soak.log
func Soak() error {
	mg.Deps(installTools)
	logFile, err := os.OpenFile("soak.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	fmt.Fprintln(logFile, time.Now().Format(time.RFC1123))
	args := gotestsum(7*time.Minute, "./fetch/...", "./fetchsvc/...", "./transport/...")
	for i := 1; ; i++ {
		announce("soak iteration %d", i)
		fmt.Fprintf(logFile, "iteration %d\n", i)
		if _, err := sh.Exec(nil, logFile, logFile, "gotestsum", args...); err != nil {
			msg := fmt.Sprintf("iteration %d failed: %v", i, err)
			fmt.Fprintln(logFile, msg)
			return fmt.Errorf("%s", msg)
		}
	}
}

// Run starts docfetchd with the sample config
func Run() error {
	return sh.RunV(goCmd, "run", "./cmd/docfetchd", "--config", "cfg/docfetchd.conf")
}

// Shell opens a docfetch shell, pass extra flags with DOCFETCH_ARGS
func Shell() error {
	args := []string{"run", "./cmd/docfetch"}
	if extra := strings.TrimSpace(os.Getenv("DOCFETCH_ARGS")); extra != "" {
		args = append(args, strings.Fields(extra)...)
	}
	return sh.RunV(goCmd, args...)
}
