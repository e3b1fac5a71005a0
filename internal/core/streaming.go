package core

// streaming.go cleans snapshot bytes on their way into the CSV reader
// without buffering the whole file:
//
//   - a leading UTF-8 BOM (0xEF 0xBB 0xBF, common in Excel exports) is dropped
//   - invalid UTF-8 bytes are replaced with '?'
//   - bytes read are counted so callers can enforce size limits and log progress
//
// Use NewSnapshotReader to apply all three in the right order.

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrSnapshotTooLarge is returned once a reader passes its byte limit.
var ErrSnapshotTooLarge = errors.New("file too large")

// SnapshotReader is the io.Reader the snapshot parser consumes.
type SnapshotReader struct {
	src       *bufio.Reader
	bomDone   bool
	pending   []byte // bytes of a rune split across reads
	bytesRead int64
	limit     int64
}

// NewSnapshotReader wraps r. limit <= 0 disables the size check.
func NewSnapshotReader(r io.Reader, limit int64) *SnapshotReader {
	return &SnapshotReader{
		src:     bufio.NewReaderSize(r, 64*1024),
		pending: make([]byte, 0, utf8.UTFMax),
		limit:   limit,
	}
}

// BytesRead returns the number of raw bytes consumed so far.
func (r *SnapshotReader) BytesRead() int64 {
	return r.bytesRead
}

// Read implements io.Reader.
func (r *SnapshotReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.bomDone {
		r.bomDone = true
		head, err := r.src.Peek(len(utf8BOM))
		if err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = r.src.Discard(len(utf8BOM))
			r.bytesRead += int64(len(utf8BOM))
		}
	}

	offset := copy(p, r.pending)
	r.pending = r.pending[:0]

	n, err := r.src.Read(p[offset:])
	r.bytesRead += int64(n)
	if r.limit > 0 && r.bytesRead > r.limit {
		return 0, ErrSnapshotTooLarge
	}

	n += offset
	if n == 0 {
		return 0, err
	}
	return r.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place, replacing invalid bytes with '?'. When
// more input follows, an incomplete rune at the end is held back for the
// next Read. It returns the number of bytes left in data.
func (r *SnapshotReader) sanitize(data []byte, atEOF bool) int {
	if isASCII(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		if !atEOF && !utf8.FullRune(data[read:]) {
			r.pending = append(r.pending, data[read:]...)
			break
		}
		ru, size := utf8.DecodeRune(data[read:])
		if ru == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
