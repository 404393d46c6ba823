package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSource replays still images from a directory in name order, looping
// forever. It stands in for a real camera during demos and tests.
type FileSource struct {
	dir     string
	encoder *Encoder

	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

// NewFileSource lists the images in dir. Files are re-scanned when the list
// runs dry so new stills can be dropped in while running.
func NewFileSource(dir string, opts ...Option) (*FileSource, error) {
	enc, err := NewEncoder(opts...)
	if err != nil {
		return nil, err
	}
	s := &FileSource{dir: dir, encoder: enc}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// RequestPermission checks that the directory is readable.
func (s *FileSource) RequestPermission(ctx context.Context) error {
	if _, err := os.ReadDir(s.dir); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return WrapError("dir", "open", ErrPermissionDenied)
		}
		return WrapError("dir", "open", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err))
	}
	return nil
}

// Capture encodes the next image in the directory.
func (s *FileSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrClosed
	}
	if len(s.files) == 0 || s.next >= len(s.files) {
		if err := s.scanLocked(); err != nil {
			s.mu.Unlock()
			return Frame{}, err
		}
		s.next = 0
	}
	if len(s.files) == 0 {
		s.mu.Unlock()
		return Frame{}, WrapError("dir", "read", ErrNotReady)
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, WrapError("dir", "read", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err))
	}
	frame, err := s.encoder.Reencode(data, time.Now())
	if err != nil {
		return Frame{}, WrapError("dir", "encode", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err))
	}
	return frame, nil
}

// Len returns the number of images currently known.
func (s *FileSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close stops the source.
func (s *FileSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *FileSource) scan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked()
}

func (s *FileSource) scanLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return WrapError("dir", "open", ErrPermissionDenied)
		}
		return WrapError("dir", "open", fmt.Errorf("%w: %v", ErrCaptureUnavailable, err))
	}

	files := s.files[:0]
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(files)
	s.files = files
	return nil
}
