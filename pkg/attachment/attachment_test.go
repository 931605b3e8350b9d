package attachment

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to recognise a PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestFromBytes_PNG(t *testing.T) {
	a, err := FromBytes(pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "image/png", a.MIME)
	assert.Equal(t, len(pngHeader), a.Size)
	require.True(t, strings.HasPrefix(a.DataURL, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(a.DataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, raw)
}

func TestFromBytes_RejectsNonImages(t *testing.T) {
	_, err := FromBytes([]byte("just some text\n"))
	assert.ErrorIs(t, err, ErrNotImage)
	assert.Equal(t, "Please select an image file", err.Error())

	_, err = FromBytes([]byte("%PDF-1.4\n"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = FromBytes(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	a, err := FromFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "avatar.png", a.Name)
	assert.Equal(t, "image/png", a.MIME)
}

func TestFromFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	_, err := FromFile(path, 4)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFromFile_Errors(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.png"), 0)
	assert.Error(t, err)

	_, err = FromFile(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/jpeg"))
	assert.False(t, IsImage("text/plain; charset=utf-8"))
}
