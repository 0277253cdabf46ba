package rpf

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
)

func TestDefragment_ReclaimsSlack(t *testing.T) {
	t.Parallel()

	path := tempRPF(t, "frag")
	a := createTestRPF(t, path, map[string][]byte{
		"a.bin":      testPayload("a", 600),
		"dir/b.bin":  testPayload("b", 1200),
		"dir/c.meta": testPayload("<c/>", 3000),
	}, EncryptionOpen, Options{Compress: includeRules("none")})
	defer func() { _ = a.Close() }()

	grown := testPayload("A", 4000)
	if _, err := a.CreateFile(a.Root(), "a.bin", grown, true); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	before := a.FileSize()
	projected, err := a.DefragmentedSize(false)
	if err != nil {
		t.Fatalf("DefragmentedSize: %v", err)
	}
	if projected >= before {
		t.Fatalf("projected=%d, want < %d", projected, before)
	}

	var (
		calls []float64
		last  = -1.0
	)
	err = a.Defragment(context.Background(), func(_ string, p float64) {
		if p < last {
			t.Errorf("progress went backwards: %f after %f", p, last)
		}
		last = p
		calls = append(calls, p)
	}, false)
	if err != nil {
		t.Fatalf("Defragment: %v", err)
	}

	if len(calls) == 0 || calls[len(calls)-1] != 1 {
		t.Fatalf("progress calls=%v, want final 1", calls)
	}
	if a.FileSize() != projected {
		t.Fatalf("FileSize=%d, want projected %d", a.FileSize(), projected)
	}

	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.Size != projected {
		t.Fatalf("on-disk size=%d, want %d", info.Size, projected)
	}

	if got := mustExtract(t, a, "a.bin"); !bytes.Equal(got, grown) {
		t.Fatal("a.bin mismatch after defrag")
	}
	if got := mustExtract(t, a, "dir/b.bin"); !bytes.Equal(got, testPayload("b", 1200)) {
		t.Fatal("dir/b.bin mismatch after defrag")
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backup must be removed by default, stat err=%v", err)
	}
}

func TestDefragment_KeepsBackup(t *testing.T) {
	t.Parallel()

	path := tempRPF(t, "bak")
	a := createTestRPF(t, path, map[string][]byte{"a.bin": []byte("a")}, EncryptionOpen, Options{BackupKeep: 1})
	defer func() { _ = a.Close() }()

	if err := a.Defragment(context.Background(), nil, false); err != nil {
		t.Fatalf("Defragment: %v", err)
	}

	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("backup must exist: %v", err)
	}
}

func TestDefragment_Recursive(t *testing.T) {
	t.Parallel()

	innerPath := tempRPF(t, "sub")
	inner := createTestRPF(t, innerPath, map[string][]byte{"x.txt": []byte("x")}, EncryptionOpen, Options{Compress: includeRules("none")})
	if _, err := inner.CreateFile(inner.Root(), "x.txt", testPayload("grown", 3000), true); err != nil {
		t.Fatalf("grow inner: %v", err)
	}
	innerSize := inner.FileSize()
	if innerSize <= 2*BlockSize {
		t.Fatalf("inner size=%d, want slack after growth", innerSize)
	}
	innerProjected, err := inner.DefragmentedSize(false)
	if err != nil {
		t.Fatalf("inner DefragmentedSize: %v", err)
	}
	_ = inner.Close()

	innerBytes, err := os.ReadFile(innerPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	outerPath := tempRPF(t, "outer")
	outer := createTestRPF(t, outerPath, map[string][]byte{
		"sub.rpf":    innerBytes,
		"plain.meta": []byte("meta"),
	}, EncryptionOpen, Options{})
	defer func() { _ = outer.Close() }()

	flat, err := outer.DefragmentedSize(false)
	if err != nil {
		t.Fatalf("DefragmentedSize flat: %v", err)
	}
	deep, err := outer.DefragmentedSize(true)
	if err != nil {
		t.Fatalf("DefragmentedSize recursive: %v", err)
	}
	if deep != flat-(innerSize-innerProjected) {
		t.Fatalf("recursive projection=%d, want %d", deep, flat-(innerSize-innerProjected))
	}

	if err := outer.Defragment(context.Background(), nil, true); err != nil {
		t.Fatalf("Defragment: %v", err)
	}
	if outer.FileSize() != deep {
		t.Fatalf("FileSize=%d, want %d", outer.FileSize(), deep)
	}

	sub := outer.Find("sub.rpf")
	decoded := mustExtract(t, outer, "sub.rpf")
	if int64(sub.UncompressedSize) != innerProjected || int(sub.UncompressedSize) != len(decoded) {
		t.Fatalf("sub.rpf UncompressedSize=%d, decoded=%d, want %d", sub.UncompressedSize, len(decoded), innerProjected)
	}
	if sub.StoredSize != sub.UncompressedSize {
		t.Fatalf("sub.rpf StoredSize=%d, UncompressedSize=%d", sub.StoredSize, sub.UncompressedSize)
	}

	view, err := outer.OpenNested(sub)
	if err != nil {
		t.Fatalf("OpenNested: %v", err)
	}
	if view.FileSize() != innerProjected {
		t.Fatalf("nested size=%d, want %d", view.FileSize(), innerProjected)
	}
	if got := mustExtract(t, view, "x.txt"); !bytes.Equal(got, testPayload("grown", 3000)) {
		t.Fatal("nested payload mismatch after recursive defrag")
	}
}

func TestDefragment_ReadOnlyView(t *testing.T) {
	t.Parallel()

	path := tempRPF(t, "v")
	a := createTestRPF(t, path, map[string][]byte{"a.bin": []byte("a")}, EncryptionOpen, Options{})
	_ = a.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	view, err := NewArchiveFromReaderAt(bytes.NewReader(raw), 0, int64(len(raw)), Options{Name: "v.rpf"})
	if err != nil {
		t.Fatalf("NewArchiveFromReaderAt: %v", err)
	}

	if err := view.Defragment(context.Background(), nil, false); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("err=%v, want ErrReadOnly", err)
	}
}
