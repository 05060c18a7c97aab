package bundle

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestBuilder(t *testing.T, limits Limits) (*Builder, string) {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "scratch")
	return NewBuilder(scratch, limits), t.TempDir()
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
	}{
		{"", ModeZip}, // default
		{"zip_bundle", ModeZip},
		{"text_concat", ModeTextConcat},
		{"pdf_merge", ModePDFMerge},
		{"docx_merge", ModeDocxMerge},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseMode("tarball")
	require.Error(t, err)
	assert.Equal(t, CodeUnsupportedMode, CodeOf(err))
}

func TestBuild_TextConcat_ByteLength(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	in1 := writeInput(t, dir, "a.txt", []byte("hello"))
	in2 := writeInput(t, dir, "b.txt", []byte("world!!"))
	dest := filepath.Join(dir, "out.txt")

	m, err := b.Build([]string{in1, in2}, ModeTextConcat, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	// len(in1) + 2 separator bytes + len(in2) for ASCII inputs.
	assert.Len(t, data, 5+2+7)
	assert.Equal(t, "hello\n\nworld!!", string(data))
	assert.Empty(t, m.Warnings)
	assert.Equal(t, int64(14), m.Bytes)
}

func TestBuild_TextConcat_NonUTF8Coerced(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	in1 := writeInput(t, dir, "ok.txt", []byte("fine"))
	in2 := writeInput(t, dir, "bad.txt", []byte{0xff, 0xfe, 'x'})
	dest := filepath.Join(dir, "out.txt")

	m, err := b.Build([]string{in1, in2}, ModeTextConcat, dest)
	require.NoError(t, err)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "non_utf8_input_coerced")
	assert.Contains(t, m.Warnings[0], in2)
}

func TestBuild_Zip_EntriesAndDuplicateNames(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	in1 := writeInput(t, dir, "f.txt", []byte("one"))
	in2 := writeInput(t, sub, "f.txt", []byte("two"))
	dest := filepath.Join(dir, "out.zip")

	_, err := b.Build([]string{in1, in2}, ModeZip, dest)
	require.NoError(t, err)

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"f.txt", "f-1.txt"}, names)
}

func TestBuild_ManifestSidecar(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	in := writeInput(t, dir, "a.txt", []byte("abc"))
	dest := filepath.Join(dir, "out.zip")

	_, err := b.Build([]string{in}, ModeZip, dest)
	require.NoError(t, err)

	raw, err := os.ReadFile(ManifestPath(dest))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, []string{in}, m.Inputs)
	assert.Equal(t, ModeZip, m.Mode)
	assert.NotZero(t, m.Bytes)
	assert.NotNil(t, m.Warnings)
	assert.Empty(t, m.Warnings)
}

func TestBuild_SizeCeilings(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{MaxFileBytes: 4, MaxTotalBytes: 6})
	small := writeInput(t, dir, "s.txt", []byte("abc"))
	big := writeInput(t, dir, "b.txt", []byte("abcdefgh"))
	dest := filepath.Join(dir, "out.txt")

	_, err := b.Build([]string{small, big}, ModeTextConcat, dest)
	require.Error(t, err)
	assert.Equal(t, CodeOversizedInput, CodeOf(err))

	other := writeInput(t, dir, "o.txt", []byte("abcd"))
	_, err = b.Build([]string{small, other}, ModeTextConcat, dest)
	require.Error(t, err)
	assert.Equal(t, CodeTotalSizeExceeded, CodeOf(err))

	// Guards reject before any work: no artifact, no sidecar.
	_, statErr := os.Lstat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Lstat(ManifestPath(dest))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_MissingInput(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	dest := filepath.Join(dir, "out.txt")

	_, err := b.Build([]string{filepath.Join(dir, "ghost.txt")}, ModeTextConcat, dest)
	require.Error(t, err)
	assert.Equal(t, CodeMissingInput, CodeOf(err))
}

func TestBuild_TimeBudgetExceededAfterBuild(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{TimeBudget: time.Second})
	in := writeInput(t, dir, "a.txt", []byte("abc"))
	dest := filepath.Join(dir, "out.txt")

	// Every clock read advances a full budget, so the post-build check fires.
	base := time.Now()
	calls := 0
	b.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 2 * time.Second)
	}

	_, err := b.Build([]string{in}, ModeTextConcat, dest)
	require.Error(t, err)
	assert.Equal(t, CodeTimeBudgetExceeded, CodeOf(err))

	// The overrun artifact was discarded, not promoted.
	_, statErr := os.Lstat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_PDFMerge_RejectsCorruptInput(t *testing.T) {
	b, dir := newTestBuilder(t, Limits{})
	in := writeInput(t, dir, "not-a.pdf", []byte("plain text"))
	dest := filepath.Join(dir, "out.pdf")

	_, err := b.Build([]string{in}, ModePDFMerge, dest)
	require.Error(t, err)
	assert.Equal(t, CodeBuildFailed, CodeOf(err))
}

func TestIsBundleError(t *testing.T) {
	err := &Error{Code: CodeBuildFailed, Mode: ModeZip, Message: "boom"}
	assert.True(t, IsBundleError(err))
	assert.False(t, IsBundleError(os.ErrNotExist))
	assert.Equal(t, ErrorCode(""), CodeOf(os.ErrNotExist))
}
