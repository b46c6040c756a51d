// Package adb drives Android devices through the adb bridge tool. A
// Session layers device targeting, output filtering and a command
// vocabulary (run, shell, exec-out) on top of a hostproc runner; every
// higher-level device operation is a thin composition over those.
package adb

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sotalab/droidctl/pkg/hostproc"
)

const connectedMarker = "connected to "

// ServerGuard ensures the bridge server is freshly restarted at most once
// per process run, no matter how many sessions share it.
type ServerGuard struct {
	once sync.Once
}

// restart performs the one-time kill-server/start-server cycle.
func (g *ServerGuard) restart(s *Session) error {
	var err error
	g.once.Do(func() {
		if err = s.KillServer(); err != nil {
			return
		}
		err = s.StartServer()
	})
	return err
}

// Session is one logical device-targeting context on top of a runner.
// The default device is set at most once, by the first successful
// connect, and is never cleared for the session's lifetime.
type Session struct {
	runner hostproc.Commander

	mu            sync.Mutex // guards defaultDevice
	defaultDevice string

	wakeupPending atomic.Bool

	connectSettle time.Duration
	keySettle     time.Duration
}

type sessionConfig struct {
	adbPath       string
	device        string
	debug         bool
	guard         *ServerGuard
	commander     hostproc.Commander
	connectSettle time.Duration
	keySettle     time.Duration
}

// SessionOption configures a Session at construction time.
type SessionOption func(*sessionConfig)

// WithADBPath overrides the bridge binary name resolved from the search
// path.
func WithADBPath(path string) SessionOption {
	return func(c *sessionConfig) { c.adbPath = path }
}

// WithDevice connects to the given device address during construction and
// pins it as the session default.
func WithDevice(addr string) SessionOption {
	return func(c *sessionConfig) { c.device = addr }
}

// WithDebug echoes every command's output through the runner logger.
func WithDebug() SessionOption {
	return func(c *sessionConfig) { c.debug = true }
}

// WithServerGuard restarts the bridge server through the guard before the
// session is used. Sessions sharing one guard restart the server at most
// once per process.
func WithServerGuard(g *ServerGuard) SessionOption {
	return func(c *sessionConfig) { c.guard = g }
}

// WithCommander substitutes the command executor. Used by tests.
func WithCommander(cmd hostproc.Commander) SessionOption {
	return func(c *sessionConfig) { c.commander = cmd }
}

// WithConnectSettle overrides the settle period after a fresh connect.
func WithConnectSettle(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.connectSettle = d }
}

// WithKeySettle overrides the settle period between wakeup key presses.
func WithKeySettle(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.keySettle = d }
}

// NewSession builds a session over a non-singleton runner for the bridge
// tool. Construction fails if the bridge binary is not on the search
// path.
func NewSession(opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{
		adbPath:       "adb",
		connectSettle: time.Second,
		keySettle:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	runner := cfg.commander
	if runner == nil {
		var runnerOpts []hostproc.Option
		if cfg.debug {
			runnerOpts = append(runnerOpts, hostproc.Debug())
		}
		r, err := hostproc.NewRunner(cfg.adbPath, runnerOpts...)
		if err != nil {
			return nil, err
		}
		runner = r
	}

	s := &Session{
		runner:        runner,
		connectSettle: cfg.connectSettle,
		keySettle:     cfg.keySettle,
	}

	if cfg.guard != nil {
		if err := cfg.guard.restart(s); err != nil {
			return nil, errors.Wrap(err, "failed to restart bridge server")
		}
	}
	if cfg.device != "" {
		if _, err := s.Connect(cfg.device); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type runOptions struct {
	device  string
	filter  *regexp.Regexp
	timeout time.Duration
}

// RunOption configures a single command invocation.
type RunOption func(*runOptions)

// OnDevice targets the command at an explicit device instead of the
// session default.
func OnDevice(id string) RunOption {
	return func(o *runOptions) { o.device = id }
}

// MatchLines keeps only the output lines matching re.
func MatchLines(re *regexp.Regexp) RunOption {
	return func(o *runOptions) { o.filter = re }
}

// Timeout bounds the command's execution; on expiry the child is killed
// and the timeout is reported in the returned output.
func Timeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// Run executes a bridge command, prefixing the device-selection flag when
// a target device is known (explicit option, else session default).
func (s *Session) Run(command any, opts ...RunOption) (string, error) {
	_, out, err := s.run(command, opts...)
	return out, err
}

func (s *Session) run(command any, opts ...RunOption) (int, string, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	args, err := hostproc.Tokenize(command)
	if err != nil {
		return 0, "", err
	}

	device := o.device
	if device == "" {
		s.mu.Lock()
		device = s.defaultDevice
		s.mu.Unlock()
	}

	argv := make([]string, 0, len(args)+2)
	if device != "" {
		argv = append(argv, "-s", device)
	}
	argv = append(argv, args...)

	var execOpts []hostproc.ExecOption
	if o.filter != nil {
		execOpts = append(execOpts, hostproc.WithFilter(o.filter))
	}
	if o.timeout > 0 {
		execOpts = append(execOpts, hostproc.WithTimeout(o.timeout))
	}
	return s.runner.Exec(argv, execOpts...)
}

// Shell executes a command inside the device's shell rather than the
// bridge's own command set.
func (s *Session) Shell(command any, opts ...RunOption) (string, error) {
	args, err := hostproc.Tokenize(command)
	if err != nil {
		return "", err
	}
	return s.Run(append([]string{"shell"}, args...), opts...)
}

// ExecOut executes a device command with its raw output streamed directly
// through the bridge.
func (s *Session) ExecOut(command any, opts ...RunOption) (string, error) {
	args, err := hostproc.Tokenize(command)
	if err != nil {
		return "", err
	}
	return s.Run(append([]string{"exec-out"}, args...), opts...)
}

// Connect connects to a device address and returns the device identifier
// reported by the bridge. The identifier becomes the session default if
// none is set yet. The bridge's connect acknowledgment can race the
// device actually becoming reachable, so a settle period follows a fresh
// connect.
func (s *Session) Connect(addr string) (string, error) {
	args := []string{"connect"}
	if addr != "" {
		args = append(args, addr)
	}
	_, out, err := s.runner.Exec(args)
	if err != nil {
		return "", err
	}

	out = strings.ToLower(out)
	i := strings.Index(out, connectedMarker)
	if i < 0 {
		return "", errors.Wrap(ErrConnection, out)
	}
	id := strings.TrimSpace(out[i+len(connectedMarker):])

	s.mu.Lock()
	if s.defaultDevice == "" {
		s.defaultDevice = id
		logrus.Debugf("Default device set to %s", id)
	}
	s.mu.Unlock()

	time.Sleep(s.connectSettle)
	return id, nil
}

// DefaultDevice reports the device identifier adopted by the first
// successful connect, or empty if none.
func (s *Session) DefaultDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultDevice
}

// Version returns the bridge tool version banner.
func (s *Session) Version() (string, error) {
	return s.Run("version")
}

// StartServer starts the bridge server.
func (s *Session) StartServer() error {
	_, err := s.Run("start-server")
	return err
}

// KillServer stops the bridge server.
func (s *Session) KillServer() error {
	_, err := s.Run("kill-server")
	return err
}

// WaitForDevice blocks until the target device is reachable.
func (s *Session) WaitForDevice(opts ...RunOption) error {
	_, err := s.Run("wait-for-device", opts...)
	return err
}

// Reboot reboots the target device.
func (s *Session) Reboot(opts ...RunOption) error {
	_, err := s.Run("reboot", opts...)
	return err
}
