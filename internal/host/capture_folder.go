package host

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

const defaultFolderFPS = 30

var errNoImages = errors.New("no png or jpeg images in folder")

// ImageFolderCapture replays the images of a directory as a looping video feed.
type ImageFolderCapture struct {
	Dir string
	FPS int
}

// NewImageFolderCapture returns a capture host over dir.
func NewImageFolderCapture(dir string, fps int) *ImageFolderCapture {
	if fps <= 0 {
		fps = defaultFolderFPS
	}

	return &ImageFolderCapture{Dir: dir, FPS: fps}
}

// ListCaptureDevices reports the folder as a single rear-facing device.
func (c *ImageFolderCapture) ListCaptureDevices(ctx context.Context) ([]CaptureDeviceInfo, error) {
	if _, err := c.images(); err != nil {
		return nil, err
	}

	return []CaptureDeviceInfo{{
		ID:     c.Dir,
		Label:  "Image folder " + filepath.Base(c.Dir) + " (back camera)",
		Facing: "environment",
	}}, nil
}

// OpenCapture opens the folder feed. deviceID must be the folder path.
func (c *ImageFolderCapture) OpenCapture(ctx context.Context, deviceID string) (FrameStream, error) {
	if deviceID != c.Dir {
		return nil, fmt.Errorf("%w: %s", customerrors.ErrDeviceNotFound, deviceID)
	}

	files, err := c.images()
	if err != nil {
		return nil, err
	}

	frames := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodeImage(f)
		if err != nil {
			return nil, err
		}

		frames = append(frames, img)
	}

	return &folderStream{
		frames: frames,
		ticker: time.NewTicker(time.Second / time.Duration(c.FPS)),
	}, nil
}

func (c *ImageFolderCapture) images() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, mapFSError(err)
	}

	var files []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(c.Dir, e.Name()))
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", customerrors.ErrDeviceNotFound, errNoImages)
	}

	slices.Sort(files)

	return files, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured capture folder
	if err != nil {
		return nil, mapFSError(err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return img, nil
}

type folderStream struct {
	frames []image.Image
	ticker *time.Ticker

	mu     sync.Mutex
	seq    uint64
	closed bool
}

func (s *folderStream) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case now := <-s.ticker.C:
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			return Frame{}, customerrors.ErrHandleClosed
		}

		img := s.frames[s.seq%uint64(len(s.frames))]
		s.seq++

		return Frame{Image: img, Seq: s.seq, At: now}, nil
	}
}

func (s *folderStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.ticker.Stop()
	}

	return nil
}
