package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobox/internal/bytesize"
)

func newMemStore(t *testing.T, quota bytesize.ByteSize) (*Store, afero.Fs) {
	t.Helper()
	base := afero.NewMemMapFs()
	s, err := New(base, Config{Root: "/data", Quota: quota})
	require.NoError(t, err)
	return s, base
}

func TestNew(t *testing.T) {
	t.Run("RequiresRoot", func(t *testing.T) {
		_, err := New(afero.NewMemMapFs(), Config{})
		assert.Error(t, err)
	})

	t.Run("DefaultsQuota", func(t *testing.T) {
		s, err := New(afero.NewMemMapFs(), Config{Root: "/data"})
		require.NoError(t, err)
		assert.Equal(t, int64(10*1024*1024), s.Quota())
		assert.Equal(t, "/data", s.Root())
	})

	t.Run("RootIsAFile", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(base, "/data", []byte("x"), 0644))
		_, err := New(base, Config{Root: "/data"})
		assert.Error(t, err)
	})

	t.Run("DefaultConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "storage", cfg.Root)
		assert.Equal(t, 10*bytesize.MiB, cfg.Quota)
		assert.False(t, cfg.SerializeUserUploads)
	})
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	s, base := newMemStore(t, DefaultQuota)

	payload := []byte("hello")
	require.NoError(t, s.Upload("alice", "a.txt", payload))

	got, err := s.Download("alice", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	onDisk, err := afero.ReadFile(base, "/data/alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
}

func TestUploadOverwrites(t *testing.T) {
	s, _ := newMemStore(t, DefaultQuota)

	require.NoError(t, s.Upload("alice", "a.txt", []byte("first version")))
	require.NoError(t, s.Upload("alice", "a.txt", []byte("v2")))

	got, err := s.Download("alice", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestUploadEmptyFile(t *testing.T) {
	s, _ := newMemStore(t, DefaultQuota)
	require.NoError(t, s.Upload("alice", "empty", nil))

	got, err := s.Download("alice", "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuota(t *testing.T) {
	t.Run("ExactlyAtQuotaIsAccepted", func(t *testing.T) {
		s, _ := newMemStore(t, 10)
		require.NoError(t, s.Upload("bob", "a", bytes.Repeat([]byte("x"), 6)))
		require.NoError(t, s.Upload("bob", "b", bytes.Repeat([]byte("x"), 4)))

		used, err := s.Usage("bob")
		require.NoError(t, err)
		assert.Equal(t, int64(10), used)
	})

	t.Run("OverQuotaLeavesNoFile", func(t *testing.T) {
		s, base := newMemStore(t, 10)
		err := s.Upload("bob", "big.bin", bytes.Repeat([]byte("x"), 11))
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		exists, _ := afero.Exists(base, "/data/bob/big.bin")
		assert.False(t, exists)
	})

	t.Run("OverQuotaKeepsExistingContent", func(t *testing.T) {
		s, _ := newMemStore(t, 10)
		require.NoError(t, s.Upload("bob", "a", []byte("12345")))

		// Existing bytes count toward usage, so rewriting a with 6 bytes exceeds 10.
		err := s.Upload("bob", "a", []byte("abcdef"))
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		got, err := s.Download("bob", "a")
		require.NoError(t, err)
		assert.Equal(t, "12345", string(got))
	})

	t.Run("QuotaIsPerUser", func(t *testing.T) {
		s, _ := newMemStore(t, 8)
		require.NoError(t, s.Upload("alice", "a", bytes.Repeat([]byte("x"), 8)))
		require.NoError(t, s.Upload("bob", "a", bytes.Repeat([]byte("x"), 8)))
	})

	t.Run("DeleteFreesQuota", func(t *testing.T) {
		s, _ := newMemStore(t, 8)
		require.NoError(t, s.Upload("carol", "a", bytes.Repeat([]byte("x"), 8)))
		assert.ErrorIs(t, s.Upload("carol", "b", []byte("y")), ErrQuotaExceeded)

		require.NoError(t, s.Delete("carol", "a"))
		require.NoError(t, s.Upload("carol", "b", []byte("y")))
	})
}

func TestUsageCountsRegularFilesOnly(t *testing.T) {
	s, base := newMemStore(t, DefaultQuota)
	require.NoError(t, s.Upload("dave", "a", []byte("123")))
	require.NoError(t, s.Upload("dave", "b", []byte("4567")))
	require.NoError(t, base.MkdirAll("/data/dave/subdir", 0755))
	require.NoError(t, afero.WriteFile(base, "/data/dave/subdir/hidden", []byte("ignored"), 0644))

	used, err := s.Usage("dave")
	require.NoError(t, err)
	assert.Equal(t, int64(7), used)

	used, err = s.Usage("nobody")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestDownloadMissing(t *testing.T) {
	s, base := newMemStore(t, DefaultQuota)

	_, err := s.Download("erin", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, base.MkdirAll("/data/erin/dir", 0755))
	_, err = s.Download("erin", "dir")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _ := newMemStore(t, DefaultQuota)
	require.NoError(t, s.Upload("frank", "a.txt", []byte("hello")))

	require.NoError(t, s.Delete("frank", "a.txt"))

	names, exists, err := s.List("frank")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NotContains(t, names, "a.txt")

	_, err = s.Download("frank", "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete("frank", "a.txt"), ErrNotFound)
}

func TestList(t *testing.T) {
	t.Run("MissingDirectory", func(t *testing.T) {
		s, _ := newMemStore(t, DefaultQuota)
		names, exists, err := s.List("ghost")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Empty(t, names)
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		s, _ := newMemStore(t, DefaultQuota)
		require.NoError(t, s.EnsureUserDir("henry"))
		require.NoError(t, s.EnsureUserDir("henry"), "idempotent")

		names, exists, err := s.List("henry")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Empty(t, names)
	})

	t.Run("SortedRegularFiles", func(t *testing.T) {
		s, base := newMemStore(t, DefaultQuota)
		for _, n := range []string{"c", "a", "b"} {
			require.NoError(t, s.Upload("ivy", n, []byte(n)))
		}
		require.NoError(t, base.MkdirAll("/data/ivy/folder", 0755))

		names, _, err := s.List("ivy")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, names)
	})
}

func TestInvalidNames(t *testing.T) {
	s, _ := newMemStore(t, DefaultQuota)

	cases := []struct{ user, file string }{
		{"../escape", "a"},
		{"alice", "../../etc/passwd"},
		{"alice", "sub/dir"},
		{"alice", ".."},
		{"", "a"},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s|%s", c.user, c.file), func(t *testing.T) {
			assert.ErrorIs(t, s.Upload(c.user, c.file, []byte("x")), ErrInvalidName)
			_, err := s.Download(c.user, c.file)
			assert.ErrorIs(t, err, ErrInvalidName)
			assert.ErrorIs(t, s.Delete(c.user, c.file), ErrInvalidName)
		})
	}

	_, _, err := s.List("a/b")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, s.EnsureUserDir(".."), ErrInvalidName)
}

func TestSerializedUploadsHonorQuota(t *testing.T) {
	base := afero.NewMemMapFs()
	s, err := New(base, Config{Root: "/data", Quota: 100, SerializeUserUploads: true})
	require.NoError(t, err)

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Upload("jack", fmt.Sprintf("f%02d", i), bytes.Repeat([]byte("x"), 10)) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	used, err := s.Usage("jack")
	require.NoError(t, err)
	assert.Equal(t, int64(100), used)
}

func TestOnHostFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "storage")
	s, err := New(nil, Config{Root: root, Quota: DefaultQuota})
	require.NoError(t, err)

	require.NoError(t, s.Upload("alice", "a.txt", []byte("hello")))

	data, err := os.ReadFile(filepath.Join(root, "alice", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	names, exists, err := s.List("alice")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{"a.txt"}, names)
}
