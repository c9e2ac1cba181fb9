package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/spirit-labs/docfetch/cli"
	"github.com/spirit-labs/docfetch/errors"
)

const (
	prompt             = "docfetch> "
	continuationPrompt = "        > "
)

var (
	borderStyle  = lipgloss.NewStyle().Faint(true)
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

type ShellCommand struct {
	VI          bool   `help:"Enable VI mode."`
	HistoryFile string `help:"File to keep statement history in, defaults to ~/.docfetch.history"`
}

// Run reads statements until EOF or CTRL-C. A statement ends with ';' and may span lines.
func (c *ShellCommand) Run(cl *cli.Cli) error {
	historyFile, err := c.historyFile()
	if err != nil {
		return err
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 prompt,
		HistoryFile:            historyFile,
		DisableAutoSaveHistory: true,
		VimMode:                c.VI,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_ = rl.Close()
	}()
	var buf statementBuffer
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		statement, complete := buf.add(line)
		if !complete {
			if !buf.empty() {
				rl.SetPrompt(continuationPrompt)
			}
			continue
		}
		rl.SetPrompt(prompt)
		_ = rl.SaveHistory(statement)
		if err := c.SendStatement(statement, cl); err != nil {
			return err
		}
	}
}

func (c *ShellCommand) historyFile() (string, error) {
	if c.HistoryFile != "" {
		return c.HistoryFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return filepath.Join(home, ".docfetch.history"), nil
}

// SendStatement executes statement and prints its output.
func (c *ShellCommand) SendStatement(statement string, cl *cli.Cli) error {
	return writeStatement(os.Stdout, statement, cl)
}

func writeStatement(out io.Writer, statement string, cl *cli.Cli) error {
	ch, err := cl.ExecuteStatement(statement)
	if err != nil {
		return errors.WithStack(err)
	}
	for line := range ch {
		if _, err := fmt.Fprintln(out, styleLine(line)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// statementBuffer joins input lines until one ends with ';'.
type statementBuffer struct {
	lines []string
}

func (b *statementBuffer) add(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	b.lines = append(b.lines, line)
	if !strings.HasSuffix(line, ";") {
		return "", false
	}
	statement := strings.Join(b.lines, " ")
	b.lines = b.lines[:0]
	return statement, true
}

func (b *statementBuffer) empty() bool {
	return len(b.lines) == 0
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+-"):
		return borderStyle.Render(line)
	case strings.HasPrefix(line, "|"):
		return line
	default:
		return summaryStyle.Render(line)
	}
}
