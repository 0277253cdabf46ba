package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/testutil"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newFixture(t *testing.T) (*Registry, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "v.rpf")
	testutil.WriteContainer(t, path, rpf.EncryptionOpen, map[string][]byte{
		"common/data/handling.meta": testutil.HandlingMeta,
	})

	return NewRegistry(rpf.Options{}, nil), path
}

func TestOpenGetClose(t *testing.T) {
	t.Parallel()

	reg, path := newFixture(t)

	id, err := reg.Open(path)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	s := reg.Get(id)
	require.NotNil(t, s)
	require.Equal(t, Unscanned, s.ScanState())
	require.Equal(t, "v.rpf", s.Archive().Name())
	require.Equal(t, 1, reg.Len())

	require.True(t, reg.Close(id))
	require.False(t, reg.Close(id))
	require.Nil(t, reg.Get(id))

	err = reg.With(id, func(*Session) error { return nil })
	require.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(rpf.Options{}, nil)
	_, err := reg.Open(filepath.Join(t.TempDir(), "missing.rpf"))
	require.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestOpenMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.rpf")
	require.NoError(t, writeFile(path, []byte("definitely not a container")))

	reg := NewRegistry(rpf.Options{}, nil)
	_, err := reg.Open(path)
	require.ErrorIs(t, err, rpf.ErrInvalidHeader)
	require.False(t, errors.Is(err, ErrArchiveNotFound))
}

func TestDistinctIDs(t *testing.T) {
	t.Parallel()

	reg, path := newFixture(t)
	defer reg.CloseAll()

	a, err := reg.Open(path)
	require.NoError(t, err)
	b, err := reg.Open(path)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Equal(t, []string{min(a, b), max(a, b)}, reg.IDs())
}

func TestWithSerializesCalls(t *testing.T) {
	t.Parallel()

	reg, path := newFixture(t)
	defer reg.CloseAll()

	id, err := reg.Open(path)
	require.NoError(t, err)

	var (
		active  int
		maxSeen int
		mu      sync.Mutex
		wg      sync.WaitGroup
	)

	for range 8 {
		wg.Go(func() {
			_ = reg.With(id, func(s *Session) error {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()

				_, err := s.Archive().ExtractPath("common/data/handling.meta")

				mu.Lock()
				active--
				mu.Unlock()
				return err
			})
		})
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
}

func TestMarkScannedNeverLowers(t *testing.T) {
	t.Parallel()

	s := &Session{}
	s.MarkScanned(FullyScanned)
	s.MarkScanned(LazilyScanned)
	require.Equal(t, FullyScanned, s.ScanState())
	require.Equal(t, "fully_scanned", s.ScanState().String())
}

func TestScanStateReadWhileHeld(t *testing.T) {
	t.Parallel()

	reg, path := newFixture(t)
	t.Cleanup(reg.CloseAll)

	id, err := reg.Open(path)
	require.NoError(t, err)
	s := reg.Get(id)

	var wg sync.WaitGroup
	for _, state := range []ScanState{LazilyScanned, FullyScanned, LazilyScanned} {
		wg.Go(func() {
			_ = reg.With(id, func(held *Session) error {
				held.MarkScanned(state)
				return nil
			})
		})
		wg.Go(func() {
			_ = s.ScanState()
		})
	}
	wg.Wait()

	require.Equal(t, FullyScanned, s.ScanState())
}

func TestExpireIdleSessions(t *testing.T) {
	t.Parallel()

	reg, path := newFixture(t)
	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	stale, err := reg.Open(path)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	fresh, err := reg.Open(path)
	require.NoError(t, err)

	require.Equal(t, 1, reg.expire(5*time.Minute))
	require.Nil(t, reg.Get(stale))
	require.NotNil(t, reg.Get(fresh))

	reg.CloseAll()
	require.Zero(t, reg.Len())
}

func TestRunJanitorStops(t *testing.T) {
	t.Parallel()

	reg, _ := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reg.RunJanitor(ctx, time.Minute, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}
