package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// ErrNotVideo is returned when a download points at a file that is not a
// video container.
var ErrNotVideo = errors.New("not a video file")

var errMissingFile = errors.New("media file missing")

// MediaInfo describes a local media file.
type MediaInfo struct {
	Format string
	MIME   string
	Size   int64
}

// InspectMedia sniffs the container type of the file at path from its
// header bytes.
func InspectMedia(path string) (MediaInfo, error) {
	if path == "" {
		return MediaInfo{}, errMissingFile
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return MediaInfo{}, errMissingFile
	}
	if err != nil {
		return MediaInfo{}, fmt.Errorf("open media %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("stat media %s: %w", path, err)
	}

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return MediaInfo{}, fmt.Errorf("read media %s: %w", path, err)
	}
	head = head[:n]

	if !filetype.IsVideo(head) {
		return MediaInfo{}, fmt.Errorf("%s: %w", path, ErrNotVideo)
	}
	kind, _ := filetype.Match(head)
	return MediaInfo{Format: kind.Extension, MIME: kind.MIME.Value, Size: st.Size()}, nil
}
