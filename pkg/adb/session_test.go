package adb

import (
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotalab/droidctl/pkg/hostproc"
)

// fakeCommander scripts bridge command responses for testing without an
// adb binary. The respond function receives the full argument vector.
type fakeCommander struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(args []string) (int, string, error)
}

func (f *fakeCommander) Exec(command any, opts ...hostproc.ExecOption) (int, string, error) {
	args, err := hostproc.Tokenize(command)
	if err != nil {
		return 0, "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(args)
	}
	return 0, "", nil
}

func (f *fakeCommander) getCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([][]string, len(f.calls))
	copy(result, f.calls)
	return result
}

func newTestSession(t *testing.T, fake *fakeCommander) *Session {
	t.Helper()
	s, err := NewSession(
		WithCommander(fake),
		WithConnectSettle(0),
		WithKeySettle(0),
	)
	require.NoError(t, err)
	return s
}

func respondTo(responses map[string]string) func([]string) (int, string, error) {
	return func(args []string) (int, string, error) {
		key := strings.Join(args, " ")
		for prefix, out := range responses {
			if strings.HasPrefix(key, prefix) {
				return 0, out, nil
			}
		}
		return 0, "", nil
	}
}

func TestConnectReturnsDeviceAndSetsDefault(t *testing.T) {
	fake := &fakeCommander{respond: respondTo(map[string]string{
		"connect deviceX": "connected to devicex",
	})}
	s := newTestSession(t, fake)

	id, err := s.Connect("deviceX")
	require.NoError(t, err)
	assert.Equal(t, "devicex", id)
	assert.Equal(t, "devicex", s.DefaultDevice())

	// A later Run with no explicit device must target the default.
	_, err = s.Run("version")
	require.NoError(t, err)
	calls := fake.getCalls()
	assert.Equal(t, []string{"-s", "devicex", "version"}, calls[len(calls)-1])
}

func TestConnectKeepsFirstDefault(t *testing.T) {
	fake := &fakeCommander{respond: func(args []string) (int, string, error) {
		return 0, "connected to " + args[len(args)-1], nil
	}}
	s := newTestSession(t, fake)

	_, err := s.Connect("first:5555")
	require.NoError(t, err)
	_, err = s.Connect("second:5555")
	require.NoError(t, err)
	assert.Equal(t, "first:5555", s.DefaultDevice())
}

func TestConnectMissingMarker(t *testing.T) {
	fake := &fakeCommander{respond: respondTo(map[string]string{
		"connect": "unable to connect to deviceX",
	})}
	s := newTestSession(t, fake)

	_, err := s.Connect("deviceX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Empty(t, s.DefaultDevice())
}

func TestRunExplicitDeviceOverridesDefault(t *testing.T) {
	fake := &fakeCommander{respond: respondTo(map[string]string{
		"connect": "connected to defaultdev",
	})}
	s := newTestSession(t, fake)

	_, err := s.Connect("defaultdev")
	require.NoError(t, err)
	_, err = s.Run("reboot", OnDevice("otherdev"))
	require.NoError(t, err)

	calls := fake.getCalls()
	assert.Equal(t, []string{"-s", "otherdev", "reboot"}, calls[len(calls)-1])
}

func TestRunWithoutDeviceOmitsSelectionFlag(t *testing.T) {
	fake := &fakeCommander{}
	s := newTestSession(t, fake)

	_, err := s.Run("version")
	require.NoError(t, err)
	assert.Equal(t, []string{"version"}, fake.getCalls()[0])
}

func TestShellPrefixesShellCommand(t *testing.T) {
	fake := &fakeCommander{}
	s := newTestSession(t, fake)

	_, err := s.Shell("pm list packages -f")
	require.NoError(t, err)
	assert.Equal(t, []string{"shell", "pm", "list", "packages", "-f"}, fake.getCalls()[0])
}

func TestExecOutPrefix(t *testing.T) {
	fake := &fakeCommander{}
	s := newTestSession(t, fake)

	_, err := s.ExecOut("uiautomator dump /dev/tty")
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-out", "uiautomator", "dump", "/dev/tty"}, fake.getCalls()[0])
}

func TestRunRejectsInvalidCommand(t *testing.T) {
	fake := &fakeCommander{}
	s := newTestSession(t, fake)

	_, err := s.Run(12)
	var invalid *hostproc.InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
	assert.Empty(t, fake.getCalls())
}

func TestServerGuardRestartsOnce(t *testing.T) {
	fake := &fakeCommander{}
	guard := &ServerGuard{}

	for i := 0; i < 3; i++ {
		_, err := NewSession(
			WithCommander(fake),
			WithConnectSettle(0),
			WithServerGuard(guard),
		)
		require.NoError(t, err)
	}

	var restarts int
	for _, call := range fake.getCalls() {
		if len(call) == 1 && call[0] == "kill-server" {
			restarts++
		}
	}
	assert.Equal(t, 1, restarts, "server must be restarted at most once per process run")
}
