package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotalab/droidctl/pkg/adb"
)

// stubADB is a shell script standing in for the real bridge tool. It
// answers the command vocabulary the session uses, so the whole stack
// (runner, pool, device targeting, parsing) is exercised end to end.
const stubADB = `#!/bin/sh
args="$*"
case "$args" in
  *connect*)
    echo "connected to stubdevice:5555"
    ;;
  *version*)
    echo "Android Debug Bridge version 1.0.41"
    ;;
  *"pm list packages"*)
    echo "package:/data/app/a.apk=com.example.a"
    echo "package:/data/app/b.apk=com.example.b"
    echo "malformed"
    ;;
  *"dumpsys power"*)
    echo "mScreenOn=true"
    echo "mHoldingWakeLockSuspendBlocker=false"
    ;;
  *"dumpsys window windows"*)
    echo "mCurrentFocus=Window{1234 u0 com.example.a/com.example.a.Main}"
    echo "mFocusedApp=AppWindowToken{5678 token=Token{com.example.a/com.example.a.Main}}"
    ;;
  *"input keyevent"*)
    ;;
  *)
    ;;
esac
exit 0
`

func writeStubADB(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "adb")
	require.NoError(t, os.WriteFile(path, []byte(stubADB), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func newStubSession(t *testing.T) *adb.Session {
	t.Helper()
	writeStubADB(t)
	s, err := adb.NewSession(
		adb.WithConnectSettle(0),
		adb.WithKeySettle(0),
	)
	require.NoError(t, err)
	return s
}

func TestEndToEndConnectAndTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStubSession(t)

	id, err := s.Connect("stubdevice:5555")
	require.NoError(t, err)
	assert.Equal(t, "stubdevice:5555", id)
	assert.Equal(t, "stubdevice:5555", s.DefaultDevice())

	out, err := s.Version()
	require.NoError(t, err)
	assert.Contains(t, out, "Android Debug Bridge")
}

func TestEndToEndPackageListing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStubSession(t)

	packages, err := s.ListInstalledPackages()
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.a", "com.example.b"}, packages)
}

func TestEndToEndFocusedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStubSession(t)

	pkg, activity, err := s.GetFocusedWindow()
	require.NoError(t, err)
	assert.Equal(t, "com.example.a", pkg)
	assert.Equal(t, "com.example.a.Main", activity)
}

func TestEndToEndPressKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	s := newStubSession(t)

	require.NoError(t, s.PressKey([]string{"power"}, 10*time.Millisecond))
}

func TestEndToEndTimeoutReported(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "adb")
	// A bridge that hangs forever.
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 60\n"), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	s, err := adb.NewSession(adb.WithConnectSettle(0))
	require.NoError(t, err)

	start := time.Now()
	out, err := s.Run("version", adb.Timeout(200*time.Millisecond))
	require.NoError(t, err, "timeout must be reported through output, not raised")
	assert.Contains(t, out, "timed out after")
	assert.Less(t, time.Since(start), 5*time.Second)
}
