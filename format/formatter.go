package format

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// Args are passed to elm-format on every invocation: read from stdin, don't prompt, target Elm 0.19.
	Args = []string{"--stdin", "--yes", "--elm-version=0.19"}

	ansiRegex = regexp.MustCompile(`\x1b\[\d{1,2}m`)
)

// Result is the outcome of a single formatting pass.
type Result struct {
	// Content is the formatted buffer content.
	Content string
	// Diagnostic is the error output of the formatter with colours removed.
	Diagnostic string
}

// Failed reports whether the formatter reported errors, in which case Content must not be used.
func (r Result) Failed() bool {
	return r.Diagnostic != ""
}

// Invoker runs elm-format as a filter over a buffer.
type Invoker struct {
	log *log.Logger
}

func NewInvoker() *Invoker {
	return &Invoker{
		log: log.WithPrefix("format"),
	}
}

// Format pipes content through the executable and waits for it to exit.
// Any error output fails the result regardless of the exit code. The returned error is only non-nil when the
// executable could not be run at all.
func (i *Invoker) Format(content string, executable string) (Result, error) {
	start := time.Now()

	var stdout, stderr bytes.Buffer

	cmd := exec.Command(executable, Args...) //nolint:gosec
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.log.Debugf("executing: %s", cmd.String())

	err := cmd.Run()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Result{}, fmt.Errorf("failed to run %s: %w", executable, err)
	}

	if diagnostic := StripANSI(stderr.String()); diagnostic != "" {
		i.log.Debugf("formatter reported errors after %v", time.Since(start))

		return Result{Diagnostic: diagnostic}, nil
	}

	if exitErr != nil {
		i.log.Warnf("%s exited with code %d without reporting an error", executable, exitErr.ExitCode())
	}

	i.log.Infof("formatted %d bytes in %v", len(content), time.Since(start))

	return Result{Content: stdout.String()}, nil
}

// StripANSI removes colour escape sequences and surrounding whitespace from s.
func StripANSI(s string) string {
	return strings.TrimSpace(ansiRegex.ReplaceAllString(s, ""))
}
