package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/testutil"
)

// scenario opens the standard fixture and returns it with a resolver using a private temp dir.
func scenario(t *testing.T) (*rpf.Archive, *Resolver, string) {
	t.Helper()

	path := testutil.Scenario(t, t.TempDir())
	a, err := rpf.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	tmp := t.TempDir()
	return a, &Resolver{TempDir: tmp}, tmp
}

func requireNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "transient containers left behind")
}

func TestExtract_Scenario(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	tests := []struct {
		path string
		want []byte
	}{
		{`common\data\handling.meta`, testutil.HandlingMeta},
		{`common/data/handling.meta`, testutil.HandlingMeta},
		{`v.rpf\common\data\handling.meta`, testutil.HandlingMeta},
		{`sub.rpf/x.txt`, []byte("nested-x")},
		{`V.RPF\SUB.RPF\X.TXT`, []byte("nested-x")},
		{`sub.rpf\inner\deep.rpf\y.txt`, []byte("deep-y")},
		{`textures\car.ytd`, testutil.Texture},
	}

	for _, tt := range tests {
		got, err := r.Extract(a, tt.path)
		require.NoError(t, err, tt.path)
		require.Equal(t, tt.want, got, tt.path)
	}

	requireNoTempFiles(t, tmp)
}

func TestExtract_BoundaryTransparent(t *testing.T) {
	t.Parallel()

	a, r, _ := scenario(t)

	viaResolver, err := r.Extract(a, `sub.rpf\inner\deep.rpf\y.txt`)
	require.NoError(t, err)

	subBytes, err := a.ExtractPath("sub.rpf")
	require.NoError(t, err)
	subPath := filepath.Join(t.TempDir(), "sub.rpf")
	require.NoError(t, os.WriteFile(subPath, subBytes, 0o600))

	sub, err := rpf.Open(subPath)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	deepBytes, err := sub.ExtractPath(`inner\deep.rpf`)
	require.NoError(t, err)
	deepPath := filepath.Join(t.TempDir(), "deep.rpf")
	require.NoError(t, os.WriteFile(deepPath, deepBytes, 0o600))

	deep, err := rpf.Open(deepPath)
	require.NoError(t, err)
	defer func() { _ = deep.Close() }()

	manual, err := deep.ExtractPath("y.txt")
	require.NoError(t, err)
	require.Equal(t, manual, viaResolver)
}

func TestWalk_NotFound(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	for _, p := range []string{
		`common\missing\handling.meta`,
		`common\data`,
		`common`,
		`sub.rpf\missing.txt`,
		`sub.rpf\inner\deep.rpf\missing.txt`,
		`sub.rpf\inner`,
		`common\data\handling.meta\x`,
		`v.rpf`,
		``,
		`nope\..\common\data\handling.meta`,
		`missing.rpf\..\sub.rpf\x.txt`,
		`common\.\data\handling.meta`,
		`sub.rpf\inner\..\x.txt`,
	} {
		called := false
		err := r.Walk(a, p, func(*rpf.Archive, *rpf.Entry) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, ErrNotFound, p)
		require.False(t, called, p)
	}

	requireNoTempFiles(t, tmp)
}

func TestWalk_ReleasesOnPanic(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()

		_ = r.Walk(a, `sub.rpf\inner\deep.rpf\y.txt`, func(*rpf.Archive, *rpf.Entry) error {
			panic("callback failed")
		})
	}()

	requireNoTempFiles(t, tmp)
}

func TestWalk_DepthGuard(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)
	r.MaxDepth = 1

	_, err := r.Extract(a, `sub.rpf\x.txt`)
	require.NoError(t, err)

	_, err = r.Extract(a, `sub.rpf\inner\deep.rpf\y.txt`)
	require.ErrorIs(t, err, ErrDepthExceeded)

	requireNoTempFiles(t, tmp)
}

func TestWalk_TransientOpenDuringCallback(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	err := r.Walk(a, `sub.rpf\x.txt`, func(owner *rpf.Archive, e *rpf.Entry) error {
		require.Equal(t, "sub.rpf", owner.Name())
		require.FileExists(t, owner.PhysicalPath())
		require.Equal(t, "x.txt", e.Name)
		return nil
	})
	require.NoError(t, err)

	requireNoTempFiles(t, tmp)
}

func TestExtractRaw(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	e := a.Find(`common\data\handling.meta`)
	require.NotNil(t, e)

	f, err := os.Open(a.PhysicalPath())
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	want := make([]byte, e.StoredSize)
	_, err = f.ReadAt(want, int64(e.BlockOffset)*rpf.BlockSize)
	require.NoError(t, err)

	got, err := r.ExtractRaw(a, `common\data\handling.meta`)
	require.NoError(t, err)
	require.Equal(t, want, got)

	nested, err := r.ExtractRaw(a, `sub.rpf\x.txt`)
	require.NoError(t, err)
	require.Equal(t, []byte("nested-x"), nested)

	_, err = r.ExtractRaw(a, `missing.bin`)
	require.ErrorIs(t, err, ErrNotFound)

	requireNoTempFiles(t, tmp)
}

func TestExtractRaw_EncryptedIsCiphertext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "enc.rpf")
	plain := []byte("a short encrypted payload")
	testutil.WriteContainer(t, path, rpf.EncryptionAES, map[string][]byte{
		"secret.txt": plain,
		"empty.txt":  {},
	})

	a, err := rpf.Open(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	r := &Resolver{TempDir: t.TempDir()}
	raw, err := r.ExtractRaw(a, "secret.txt")
	require.NoError(t, err)
	require.Len(t, raw, int(a.Find("secret.txt").StoredSize))
	require.NotEqual(t, plain, raw)

	decoded, err := r.Extract(a, "secret.txt")
	require.NoError(t, err)
	require.Equal(t, plain, decoded)

	empty, err := r.ExtractRaw(a, "empty.txt")
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestFlattenPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sub/inner/deep/y.txt", FlattenPath([]string{"sub.rpf", "inner", "deep.rpf", "y.txt"}))
	require.Equal(t, "dlc/patch.rpf", FlattenPath([]string{"dlc.rpf", "patch.rpf"}))
	require.Equal(t, "a.txt", FlattenPath([]string{"a.txt"}))
}

func TestNormalizeOutputPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a/b/c.txt", "a/b/c.txt", false},
		{`a\.\b`, "a/b", false},
		{"../x", "", true},
		{"a/../../x", "", true},
		{"/etc/passwd", "", true},
		{`C:\x`, "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeOutputPath(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidOutputPath, tt.in)
			continue
		}

		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestWalkDir(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	tests := []struct {
		path  string
		owner string
		want  string
	}{
		{"", "v.rpf", "v.rpf"},
		{`v.rpf\common`, "v.rpf", `v.rpf\common`},
		{`sub.rpf`, "sub.rpf", "sub.rpf"},
		{`sub.rpf/inner`, "sub.rpf", `sub.rpf\inner`},
		{`sub.rpf\inner\deep.rpf`, "deep.rpf", "deep.rpf"},
	}

	for _, tt := range tests {
		err := r.WalkDir(a, tt.path, func(owner *rpf.Archive, dir *rpf.Entry) error {
			require.Equal(t, tt.owner, owner.Name(), tt.path)
			require.True(t, dir.IsDir(), tt.path)
			require.Equal(t, tt.want, dir.Path, tt.path)
			return nil
		})
		require.NoError(t, err, tt.path)
	}

	err := r.WalkDir(a, `common\data\handling.meta`, func(*rpf.Archive, *rpf.Entry) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	requireNoTempFiles(t, tmp)
}

func TestVisit(t *testing.T) {
	t.Parallel()

	a, r, tmp := scenario(t)

	var flat []string
	require.NoError(t, r.Visit(a, false, func(_ *rpf.Archive, p string, _ *rpf.Entry) error {
		flat = append(flat, p)
		return nil
	}))
	require.Len(t, flat, 6)

	var deep []string
	require.NoError(t, r.Visit(a, true, func(owner *rpf.Archive, p string, e *rpf.Entry) error {
		require.NotNil(t, owner.Find(e.RelPath()))
		deep = append(deep, p)
		return nil
	}))
	require.Equal(t, []string{
		`common`,
		`common\data`,
		`common\data\handling.meta`,
		`sub.rpf`,
		`sub.rpf\inner`,
		`sub.rpf\inner\deep.rpf`,
		`sub.rpf\inner\deep.rpf\y.txt`,
		`sub.rpf\x.txt`,
		`textures`,
		`textures\car.ytd`,
	}, deep)

	stop := errors.New("stop")
	var seen int
	err := r.Visit(a, true, func(*rpf.Archive, string, *rpf.Entry) error {
		seen++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, seen)

	requireNoTempFiles(t, tmp)
}
