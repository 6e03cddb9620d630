package http1

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkedReaderDecodesWikipediaExample(t *testing.T) {
	raw := "4\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 0)

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "Wiki"+"pedia"+" in\r\n\r\nchunks.", string(got))
}

func TestChunkedReaderStripsExtensions(t *testing.T) {
	raw := "5;ext=evil\r\nhello\r\n0\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 0)

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestChunkedReaderRejectsBadSize(t *testing.T) {
	raw := "zz\r\nhello\r\n0\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 0)

	_, err := io.ReadAll(cr)
	require.Error(t, err)
}

func TestChunkedReaderEnforcesBodyLimit(t *testing.T) {
	raw := "a\r\n0123456789\r\n0\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 5)

	_, err := io.ReadAll(cr)
	require.Error(t, err)
}

func TestChunkedReaderParsesTrailers(t *testing.T) {
	raw := "5\r\nhello\r\n0\r\nX-Checksum: abc123\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 0)

	got, err := io.ReadAll(cr)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.Equal(t, "abc123", cr.Trailer().Get("X-Checksum"))
}

func TestChunkedReaderTruncatedMidChunk(t *testing.T) {
	raw := "a\r\nhel"
	cr := newChunkedReader(bufio.NewReader(bytes.NewBufferString(raw)), 0)

	_, err := io.ReadAll(cr)
	require.Error(t, err)
}
