package adb

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/sotalab/droidctl/pkg/hierarchy"
	"github.com/sotalab/droidctl/pkg/keymap"
)

var (
	focusTokenPattern  = regexp.MustCompile(`[\w.]+/[\w.]+`)
	screenStatePattern = regexp.MustCompile(`mScreenOn=`)
)

const hierarchyConfirmation = "UI hierchary dumped to:" // sic, the tool's own spelling

// ListInstalledPackages returns the package identifiers installed on the
// target device. Lines of the package-manager listing without exactly one
// path=package separator are skipped.
func (s *Session) ListInstalledPackages(opts ...RunOption) ([]string, error) {
	out, err := s.Shell("pm list packages -f", opts...)
	if err != nil {
		return nil, err
	}

	var packages []string
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "=")
		if len(parts) == 2 {
			packages = append(packages, strings.TrimSpace(parts[1]))
		}
	}
	return packages, nil
}

// ListPackageActivities returns the exported activities of a package, in
// dump order without duplicates. Only dotted activity names with exactly
// two path segments are kept.
func (s *Session) ListPackageActivities(pkg string, opts ...RunOption) ([]string, error) {
	out, err := s.Shell([]string{"dumpsys", "package", pkg}, opts...)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(`\w{8} ` + regexp.QuoteMeta(pkg) + `/([\w.]+) filter \w{8}`)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid package name %q", pkg)
	}

	seen := make(map[string]struct{})
	var activities []string
	for _, match := range pattern.FindAllStringSubmatch(out, -1) {
		activity := match[1]
		if _, dup := seen[activity]; dup {
			continue
		}
		if len(strings.Split(activity, ".")) != 2 {
			continue
		}
		seen[activity] = struct{}{}
		activities = append(activities, activity)
	}
	return activities, nil
}

// GetFocusedWindow returns the package and activity of the currently
// focused window. The ANR and application-error dialogs are reported as
// errors even when a valid focus token is present.
func (s *Session) GetFocusedWindow(opts ...RunOption) (string, string, error) {
	out, err := s.Shell(`dumpsys window windows | grep -E "mCurrentFocus|mFocusedApp"`, opts...)
	if err != nil {
		return "", "", err
	}

	lines := strings.SplitN(out, "\n", 2)
	focusLine := lines[0]
	appLine := focusLine
	if len(lines) > 1 {
		appLine = lines[1]
	}

	if strings.Contains(focusLine, "Application Error") {
		return "", "", errors.Wrap(ErrApplicationError, focusLine)
	}
	if strings.Contains(focusLine, "Application Not Responding") {
		return "", "", errors.Wrap(ErrApplicationNotResponding, focusLine)
	}

	token := focusTokenPattern.FindString(appLine)
	if token == "" {
		return "", "", errors.Wrap(ErrWindowNotFound, out)
	}
	parts := strings.SplitN(token, "/", 2)
	return parts[0], parts[1], nil
}

// GetViewHierarchy dumps and parses the device's current UI hierarchy.
func (s *Session) GetViewHierarchy(opts ...RunOption) (*etree.Document, error) {
	out, err := s.ExecOut("uiautomator dump /dev/tty", opts...)
	if err != nil {
		return nil, err
	}
	if i := strings.Index(out, hierarchyConfirmation); i >= 0 {
		out = out[:i]
	}
	return hierarchy.Parse(out)
}

// Launch starts an activity of a package, or fires the launcher intent
// for the package when no activity is given.
func (s *Session) Launch(pkg, activity string, opts ...RunOption) error {
	if activity == "" {
		_, err := s.Shell([]string{"monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1"}, opts...)
		return err
	}
	sep := "/."
	if strings.HasPrefix(activity, ".") {
		sep = "/"
	}
	_, err := s.Shell([]string{"am", "start", "-n", pkg + sep + activity}, opts...)
	return err
}

type screenState int

const (
	screenUnknown screenState = iota
	screenOff
	screenOn
)

func (s *Session) readScreenState(opts ...RunOption) (screenState, string, error) {
	out, err := s.Shell("dumpsys power", append(opts, MatchLines(screenStatePattern))...)
	if err != nil {
		return screenUnknown, "", err
	}
	switch strings.TrimSpace(out) {
	case "mScreenOn=true":
		return screenOn, out, nil
	case "mScreenOn=false":
		return screenOff, out, nil
	}
	return screenUnknown, out, nil
}

// Wakeup turns the device screen on if it is off. PressKey and InputText
// trigger a wakeup themselves, so the pending flag guards against the
// recursive invocation from the key presses issued here.
func (s *Session) Wakeup(opts ...RunOption) error {
	if !s.wakeupPending.CompareAndSwap(false, true) {
		return nil
	}
	defer s.wakeupPending.Store(false)

	state, raw, err := s.readScreenState(opts...)
	if err != nil {
		return err
	}
	if state == screenOff {
		if err := s.PressKey([]string{"POWER"}, s.keySettle, opts...); err != nil {
			return err
		}
		if err := s.PressKey([]string{"MENU"}, s.keySettle, opts...); err != nil {
			return err
		}
		state, raw, err = s.readScreenState(opts...)
		if err != nil {
			return err
		}
	}
	if state != screenOn {
		return errors.Wrap(ErrWakeupFailed, raw)
	}
	return nil
}

// PressKey sends the named keys as one combined key event, then sleeps
// waitAfter to give the device time to process it. Every name must be
// mapped before any process is spawned.
func (s *Session) PressKey(names []string, waitAfter time.Duration, opts ...RunOption) error {
	codes := make([]string, 0, len(names))
	for _, name := range names {
		code, ok := keymap.Lookup(name)
		if !ok {
			return errors.Wrapf(ErrUnknownKey, "%q", name)
		}
		codes = append(codes, fmt.Sprintf("%d", code))
	}

	if err := s.Wakeup(opts...); err != nil {
		return err
	}
	if _, err := s.Shell(append([]string{"input", "keyevent"}, codes...), opts...); err != nil {
		return err
	}
	time.Sleep(waitAfter)
	return nil
}

// InputText types text on the device, escaping spaces with the bridge's
// escape token, then sleeps waitAfter.
func (s *Session) InputText(text string, waitAfter time.Duration, opts ...RunOption) error {
	if err := s.Wakeup(opts...); err != nil {
		return err
	}
	escaped := strings.ReplaceAll(text, " ", "%s")
	if _, err := s.Shell([]string{"input", "text", escaped}, opts...); err != nil {
		return err
	}
	time.Sleep(waitAfter)
	return nil
}

// Install installs an apk on the target device. A non-empty flags string
// is passed as a single dash-prefixed option, e.g. "r" for reinstall.
func (s *Session) Install(apkPath, flags string, opts ...RunOption) error {
	args := []string{"install"}
	if flags != "" {
		args = append(args, "-"+flags)
	}
	args = append(args, apkPath)
	_, err := s.Run(args, opts...)
	return err
}

// Uninstall removes a package from the target device.
func (s *Session) Uninstall(pkg, flags string, opts ...RunOption) error {
	args := []string{"uninstall"}
	if flags != "" {
		args = append(args, "-"+flags)
	}
	args = append(args, pkg)
	_, err := s.Run(args, opts...)
	return err
}
