package adb

import (
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Screenshot captures the device screen and returns the decoded image.
// The capture goes through a randomly named temporary file on the device,
// which is pulled to the host and removed on both sides.
func (s *Session) Screenshot(opts ...RunOption) (image.Image, error) {
	if err := s.Wakeup(opts...); err != nil {
		return nil, err
	}

	name := uuid.New().String() + ".png"
	remote := "/sdcard/" + name
	local := filepath.Join(os.TempDir(), name)

	if _, err := s.Shell([]string{"screencap", remote}, opts...); err != nil {
		return nil, err
	}
	if _, err := s.Run([]string{"pull", remote, local}, opts...); err != nil {
		return nil, err
	}
	if _, err := s.Shell([]string{"rm", remote}, opts...); err != nil {
		return nil, err
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pulled screenshot")
	}
	img, err := png.Decode(f)
	f.Close()
	os.Remove(local)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode screenshot")
	}
	return img, nil
}
