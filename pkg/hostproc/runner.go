// Package hostproc provides supervised execution of external commands.
// A Runner wraps one executable resolved from the search path, tracks its
// live children in a pool that is reclaimed on process shutdown, enforces
// per-call timeouts, and can serialize all calls through a single lock
// when the wrapped tool models a stateful resource.
package hostproc

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Commander abstracts command execution against a fixed executable.
// Implementations can execute real child processes or provide mock
// behavior for testing.
type Commander interface {
	// Exec appends command to the base argument vector, runs it and
	// returns the exit status and the merged, trimmed output.
	Exec(command any, opts ...ExecOption) (int, string, error)
}

// Runner executes argument vectors as child processes of one fixed
// executable. The zero value is not usable; construct with NewRunner.
type Runner struct {
	bin       []string
	singleton bool
	debug     bool
	gate      sync.Mutex
	pool      *procPool
	log       *logrus.Entry
}

// Option configures a Runner at construction time.
type Option func(*Runner)

// Singleton serializes all Exec calls on the runner through one lock, so
// at most one command is in flight at any time. Required when repeated
// invocations share stateful context on the other side of the tool.
func Singleton() Option {
	return func(r *Runner) { r.singleton = true }
}

// Debug echoes command output through the runner's logger.
func Debug() Option {
	return func(r *Runner) { r.debug = true }
}

// NewRunner resolves the named executable against the system search path
// and returns a runner for it. The command may be a single string (lexed
// with shell quoting rules) or an explicit argument vector; the first
// element is the executable, the rest become base arguments prepended to
// every Exec call. Resolution failure is fatal to the runner.
func NewRunner(command any, opts ...Option) (*Runner, error) {
	bin, err := Tokenize(command)
	if err != nil {
		return nil, err
	}
	if len(bin) > 0 {
		path, err := exec.LookPath(bin[0])
		if err != nil || path == "" {
			return nil, &BinaryNotFoundError{Name: bin[0]}
		}
		bin[0] = path
	}

	r := &Runner{
		bin:  bin,
		pool: newProcPool(),
	}
	for _, opt := range opts {
		opt(r)
	}
	name := ""
	if len(bin) > 0 {
		name = bin[0]
	}
	r.log = logrus.WithField("bin", name)

	registerPool(r.pool)
	return r, nil
}

type execOptions struct {
	timeout  time.Duration
	filter   *regexp.Regexp
	callback func(int, string)
}

// ExecOption configures a single Exec call.
type ExecOption func(*execOptions)

// WithTimeout bounds the wait for the child process. On expiry the child
// is killed and the call returns normally with a synthetic message
// describing the timeout as its output.
func WithTimeout(d time.Duration) ExecOption {
	return func(o *execOptions) { o.timeout = d }
}

// WithFilter reduces the output to only the lines matching re.
func WithFilter(re *regexp.Regexp) ExecOption {
	return func(o *execOptions) { o.filter = re }
}

// WithCallback invokes fn with (exit status, output) after capture
// completes, before the value is returned. Observers only; the return
// value is unaffected.
func WithCallback(fn func(int, string)) ExecOption {
	return func(o *execOptions) { o.callback = fn }
}

// Exec appends the tokenized command to the runner's base argument vector
// and runs it as a child process with stdin disconnected. Stdout and
// stderr are merged into a single stream at the redirection level. The
// child is registered in the runner's pool for the duration of the call
// and removed on every exit path. A timeout is reported through the
// output text, never through the error channel; the error return is
// reserved for malformed arguments and spawn failures.
func (r *Runner) Exec(command any, opts ...ExecOption) (int, string, error) {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}

	args, err := Tokenize(command)
	if err != nil {
		return 0, "", err
	}

	if r.singleton {
		r.gate.Lock()
		defer r.gate.Unlock()
	}

	argv := make([]string, 0, len(r.bin)+len(args))
	argv = append(argv, r.bin...)
	argv = append(argv, args...)
	if len(argv) == 0 {
		return 0, "", &InvalidArgumentError{Value: command}
	}
	r.log.Debugf("> %s", strings.Join(argv, " "))

	cmd := exec.Command(argv[0], argv[1:]...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.Stdin = nil

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return 0, "", errors.Wrapf(err, "failed to start %s", argv[0])
	}

	r.pool.add(cmd)
	defer r.pool.remove(cmd)

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	timedOut := false
	if o.timeout > 0 {
		select {
		case <-waited:
		case <-time.After(o.timeout):
			timedOut = true
			_ = cmd.Process.Kill()
			<-waited
		}
	} else {
		<-waited
	}

	var output string
	if timedOut {
		output = fmt.Sprintf("Process %d timed out after %s", cmd.Process.Pid, o.timeout)
		r.log.Warn(output)
	} else {
		// Invalid UTF-8 is dropped rather than failing the call: the
		// output is a best-effort diagnostic channel.
		output = strings.TrimSpace(strings.ToValidUTF8(buf.String(), ""))
		if o.filter != nil {
			output = filterLines(output, o.filter)
		}
	}

	status := cmd.ProcessState.ExitCode()
	r.log.WithFields(logrus.Fields{
		"command":  strings.Join(argv, " "),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("command finished")

	if o.callback != nil {
		o.callback(status, output)
	}
	if r.debug && output != "" {
		r.log.Info(output)
	}
	return status, output, nil
}

// PoolSize reports the number of child processes currently tracked by the
// runner.
func (r *Runner) PoolSize() int {
	return r.pool.size()
}

// filterLines keeps only the lines of s matching re.
func filterLines(s string, re *regexp.Regexp) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if re.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
