// Package action builds the work items that configured jobs run.
package action

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"

	"pewsched/internal/task/job"
	logx "pewsched/pkg/logx"
)

const (
	// outputLimit bounds the captured output kept per run.
	outputLimit = 8 << 10
	// waitDelay bounds how long a killed command may hold its pipes open.
	waitDelay = 2 * time.Second
)

// ErrEmptyCommand is returned for a command line with no words.
var ErrEmptyCommand = errors.New("empty command")

// Command parses argv with shell quoting rules and returns a work item that
// executes it directly (no shell). Output is captured and logged at debug;
// a non-zero exit fails the run with the tail of the output attached.
func Command(argv string, log logx.Logger) (job.Func, error) {
	words, err := shellquote.Split(argv)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", argv)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	name, args := words[0], words[1:]

	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.WaitDelay = waitDelay
		out := &tailBuffer{limit: outputLimit}
		cmd.Stdout = out
		cmd.Stderr = out

		start := time.Now()
		runErr := cmd.Run()
		took := time.Since(start)

		sc := bufio.NewScanner(bytes.NewReader(out.Bytes()))
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				log.Debug("command output", logx.String("cmd", name), logx.String("line", line))
			}
		}

		if runErr != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "command %s interrupted after %s", name, took.Round(time.Millisecond))
			}
			tail := strings.TrimSpace(out.String())
			if tail == "" {
				return errors.Wrapf(runErr, "command %s", name)
			}
			return errors.WithDetail(errors.Wrapf(runErr, "command %s: %s", name, lastLine(tail)), tail)
		}
		return nil
	}, nil
}

// Log returns a work item that logs message at info.
func Log(message string, log logx.Logger) job.Func {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(context.Context) error {
		log.Info(message)
		return nil
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.limit {
		p = p[len(p)-t.limit:]
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) Bytes() []byte  { return t.buf.Bytes() }
func (t *tailBuffer) String() string { return t.buf.String() }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
