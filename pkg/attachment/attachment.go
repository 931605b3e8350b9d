// Package attachment turns local image files into the data URLs the backend
// accepts for message images and profile pictures.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxSize is the largest file FromFile accepts by default.
const DefaultMaxSize = 5 << 20

var (
	// ErrNotImage is returned for files whose content is not an image.
	ErrNotImage = errors.New("Please select an image file") //nolint:staticcheck // user-facing text
	// ErrTooLarge is returned for files above the size limit.
	ErrTooLarge = errors.New("Image is too large") //nolint:staticcheck // user-facing text
	// ErrEmpty is returned for empty files.
	ErrEmpty = errors.New("File is empty") //nolint:staticcheck // user-facing text
)

// Attachment is an encoded image ready to send.
type Attachment struct {
	Name    string
	MIME    string
	Size    int
	DataURL string
}

// FromFile reads path, checks that it is an image no larger than maxSize
// (DefaultMaxSize when maxSize <= 0) and encodes it.
func FromFile(path string, maxSize int64) (Attachment, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	f, err := os.Open(path) //nolint:gosec // path is chosen by the local user
	if err != nil {
		return Attachment{}, fmt.Errorf("attachment: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Attachment{}, fmt.Errorf("attachment: stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Attachment{}, fmt.Errorf("attachment: %s is not a file", path)
	}
	if info.Size() > maxSize {
		return Attachment{}, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return Attachment{}, fmt.Errorf("attachment: read: %w", err)
	}
	if int64(len(data)) > maxSize {
		return Attachment{}, ErrTooLarge
	}

	a, err := FromBytes(data)
	if err != nil {
		return Attachment{}, err
	}
	a.Name = info.Name()

	return a, nil
}

// FromBytes checks that data is an image and encodes it.
func FromBytes(data []byte) (Attachment, error) {
	if len(data) == 0 {
		return Attachment{}, ErrEmpty
	}

	mt := mimetype.Detect(data)
	if !IsImage(mt.String()) {
		return Attachment{}, ErrNotImage
	}

	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	return Attachment{
		MIME:    mime,
		Size:    len(data),
		DataURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// IsImage reports whether a MIME type names an image.
func IsImage(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
