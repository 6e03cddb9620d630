package http1

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipartBodyContentLengthMatchesRenderedSize(t *testing.T) {
	fields := []Field{
		{Name: "field1", Value: "value1"},
		{Name: "file", Filename: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("hello"), Size: 5},
	}
	m := NewMultipartBody(fields)

	want, err := m.ContentLength()
	require.NoError(t, err)

	got, err := io.ReadAll(m.Reader())
	require.NoError(t, err)
	require.Equal(t, want, int64(len(got)))
}

func TestMultipartBodyGuessesContentTypeFromFilename(t *testing.T) {
	fields := []Field{
		{Name: "file", Filename: "photo.png", Reader: strings.NewReader("x"), Size: 1},
	}
	m := NewMultipartBody(fields)

	out, err := io.ReadAll(m.Reader())
	require.NoError(t, err)
	require.Contains(t, string(out), "Content-Type: image/png")
}

func TestMultipartBodyUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	fields := []Field{
		{Name: "file", Filename: "data.unknownext", Reader: strings.NewReader("x"), Size: 1},
	}
	m := NewMultipartBody(fields)

	out, err := io.ReadAll(m.Reader())
	require.NoError(t, err)
	require.Contains(t, string(out), "Content-Type: application/octet-stream")
}

func TestMultipartBodyContainsFieldsAndBoundary(t *testing.T) {
	fields := []Field{{Name: "foo", Value: "bar"}}
	m := NewMultipartBody(fields)

	out, err := io.ReadAll(m.Reader())
	require.NoError(t, err)

	s := string(out)
	require.Contains(t, s, "Content-Disposition: form-data; name=\"foo\"")
	require.Contains(t, s, "bar")
	require.Contains(t, s, "--"+m.Boundary()+"--\r\n")
}
