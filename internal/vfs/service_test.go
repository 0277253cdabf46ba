package vfs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/session"
	"github.com/woozymasta/rpf/internal/testutil"
)

func newService(t *testing.T) (*Service, string) {
	t.Helper()

	path := testutil.Scenario(t, t.TempDir())
	reg := session.NewRegistry(rpf.Options{}, nil)
	t.Cleanup(reg.CloseAll)

	svc, err := NewService(reg, &Resolver{TempDir: t.TempDir()}, 4, nil)
	require.NoError(t, err)

	id, err := svc.Open(path)
	require.NoError(t, err)
	return svc, id
}

func TestService_ScenarioLifecycle(t *testing.T) {
	t.Parallel()

	svc, id := newService(t)

	meta, err := svc.Extract(id, `common\data\handling.meta`)
	require.NoError(t, err)
	require.Equal(t, testutil.HandlingMeta, meta)
	require.Equal(t, session.Unscanned, svc.Registry().Get(id).ScanState())

	x, err := svc.Extract(id, `sub.rpf\x.txt`)
	require.NoError(t, err)
	require.Equal(t, []byte("nested-x"), x)
	require.Equal(t, session.LazilyScanned, svc.Registry().Get(id).ScanState())

	require.True(t, svc.Close(id))
	require.False(t, svc.Close(id))

	_, err = svc.Extract(id, `common\data\handling.meta`)
	require.ErrorIs(t, err, session.ErrArchiveNotFound)

	_, err = svc.ExtractRaw(id, `common\data\handling.meta`)
	require.ErrorIs(t, err, session.ErrArchiveNotFound)

	ok, err := svc.Replace(id, `common\data\handling.meta`, []byte("x"))
	require.ErrorIs(t, err, session.ErrArchiveNotFound)
	require.False(t, ok)
}

func TestService_FindByNameUsesIndex(t *testing.T) {
	t.Parallel()

	svc, id := newService(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			got, err := svc.FindByName(id, "x.txt")
			assert.NoError(t, err)
			assert.Equal(t, []string{`sub.rpf\x.txt`}, got)
		})
	}
	wg.Wait()

	require.Equal(t, session.FullyScanned, svc.Registry().Get(id).ScanState())

	first, err := svc.Index(id)
	require.NoError(t, err)
	second, err := svc.Index(id)
	require.NoError(t, err)
	require.Same(t, first, second)

	ok, err := svc.Replace(id, `common\data\handling.meta`, []byte("<x/>"))
	require.NoError(t, err)
	require.True(t, ok)

	third, err := svc.Index(id)
	require.NoError(t, err)
	require.NotSame(t, first, third, "replace must invalidate the index")
}

func TestService_IndexInvalidatedDuringBuild(t *testing.T) {
	t.Parallel()

	path := testutil.Scenario(t, t.TempDir())
	reg := session.NewRegistry(rpf.Options{}, nil)
	t.Cleanup(reg.CloseAll)

	var (
		svc  *Service
		id   string
		once sync.Once
	)
	resolver := &Resolver{
		TempDir: t.TempDir(),
		OnDescend: func(*rpf.Entry) {
			once.Do(func() { svc.Invalidate(id) })
		},
	}

	svc, err := NewService(reg, resolver, 4, nil)
	require.NoError(t, err)
	id, err = svc.Open(path)
	require.NoError(t, err)

	first, err := svc.Index(id)
	require.NoError(t, err)
	require.Equal(t, []string{`sub.rpf\x.txt`}, first.Lookup("x.txt"))
	require.False(t, svc.indexes.Contains(id), "index built across an invalidation must not be cached")

	second, err := svc.Index(id)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.True(t, svc.indexes.Contains(id))
}

func TestService_CloseDropsIndex(t *testing.T) {
	t.Parallel()

	svc, id := newService(t)

	_, err := svc.Index(id)
	require.NoError(t, err)
	require.True(t, svc.Close(id))
	require.False(t, svc.indexes.Contains(id))

	svc.store(id, 0, &NameIndex{})
	require.False(t, svc.indexes.Contains(id), "closed session must not get an index back")
}

func TestService_UnknownSession(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.FindByName("missing", "x.txt")
	require.ErrorIs(t, err, session.ErrArchiveNotFound)

	ok, err := svc.Replace("missing", "a.txt", nil)
	require.ErrorIs(t, err, session.ErrArchiveNotFound)
	require.False(t, ok)
}
