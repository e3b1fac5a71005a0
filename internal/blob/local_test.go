package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), "https://files.example.org/blobs/")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStoreAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	url, err := s.Store(ctx, "../../etc/snapshot march.csv", []byte("external_id\nA1\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://files.example.org/blobs/2024/03/09/"), url)
	assert.True(t, strings.HasSuffix(url, "-snapshot_march.csv"), url)

	key, ok := s.keyFor(url)
	require.True(t, ok)
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "external_id\nA1\n", string(data))

	require.NoError(t, s.Delete(ctx, []string{url}))
	_, err = os.Stat(filepath.Join(s.dir, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))

	// deleting again is fine
	require.NoError(t, s.Delete(ctx, []string{url}))
}

func TestDeleteSkipsForeignURLs(t *testing.T) {
	s := newTestStore(t)

	outside := filepath.Join(filepath.Dir(s.dir), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	t.Cleanup(func() { os.Remove(outside) })

	err := s.Delete(context.Background(), []string{
		"https://elsewhere.example.org/photo.jpg",
		"https://files.example.org/blobs/../keep.txt",
		"https://files.example.org/blobs/",
	})
	require.NoError(t, err)

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"snapshot.csv", "snapshot.csv"},
		{"a b/c d.csv", "c_d.csv"},
		{`C:\uploads\list.csv`, "list.csv"},
		{"صور.jpg", "___.jpg"},
		{"", "blob"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLocalStoreRequiresDir(t *testing.T) {
	_, err := NewLocalStore("", "http://x")
	assert.Error(t, err)
}

func TestStoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestStore(t).Store(ctx, "a.csv", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
