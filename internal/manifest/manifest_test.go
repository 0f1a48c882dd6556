package manifest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lupppig/bita/internal/archive"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_SerializeDeserialize(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	m := &Manifest{
		ID:             "123-abc",
		ParentID:       "122-abc",
		Source:         "disk.img",
		Archive:        "s3:images/disk.bita",
		FormatVersion:  1,
		HashFunc:       "blake2b",
		HashLength:     32,
		Chunker:        "buzhash min=16384 max=65536",
		Codecs:         map[string]int{"zstd": 10, "none": 2},
		SourceSize:     1 << 20,
		SourceChecksum: "deadbeef",
		Chunks:         40,
		UniqueChunks:   12,
		ArchiveSize:    4096,
		Checksum:       "cafe",
		CreatedAt:      now,
	}

	data, err := m.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_checksum": "deadbeef"`)

	m2, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, m.ID, m2.ID)
	assert.Equal(t, m.ParentID, m2.ParentID)
	assert.Equal(t, m.Archive, m2.Archive)
	assert.Equal(t, m.Codecs, m2.Codecs)
	assert.Equal(t, m.SourceSize, m2.SourceSize)
	assert.Equal(t, m.UniqueChunks, m2.UniqueChunks)
	assert.True(t, m.CreatedAt.Equal(m2.CreatedAt), "times should match")
}

func TestManifest_Deserialize_Invalid(t *testing.T) {
	_, err := Deserialize([]byte(`{invalid json`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeFormat))

	_, err = Deserialize([]byte(`{"source": "x"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeFormat))
}

func TestNewManifest(t *testing.T) {
	a := New("out.bita", "in.img")
	b := New("out.bita", "in.img")

	assert.Equal(t, "out.bita", a.Archive)
	assert.Equal(t, "in.img", a.Source)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.WithinDuration(t, time.Now(), a.CreatedAt, time.Second)
}

func TestSidecarURI(t *testing.T) {
	assert.Equal(t, "out.bita.manifest.json", SidecarURI("out.bita"))
	assert.Equal(t, "s3://minio:9000/b/x.bita.manifest.json?ssl=false", SidecarURI("s3://minio:9000/b/x.bita?ssl=false"))
}

func TestFromArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.bita")

	opts := archive.DefaultBuildOptions()
	opts.TempDir = dir
	b, err := archive.NewBuilder(opts)
	require.NoError(t, err)

	src := []byte(strings.Repeat("manifest test data ", 10000))
	f, err := os.Create(path)
	require.NoError(t, err)
	stats, err := b.Build(context.Background(), bytes.NewReader(src), f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	backend := storage.NewLocalBackend(path)
	defer backend.Close()
	r, err := archive.Open(context.Background(), backend)
	require.NoError(t, err)

	m := FromArchive(r, path, "src.txt")
	assert.Equal(t, archive.Version, m.FormatVersion)
	assert.Equal(t, "blake2b", m.HashFunc)
	assert.Equal(t, 32, m.HashLength)
	assert.Equal(t, uint64(len(src)), m.SourceSize)
	assert.Equal(t, stats.Chunks, m.Chunks)
	assert.Equal(t, stats.UniqueChunks, m.UniqueChunks)
	assert.Equal(t, int64(stats.ArchiveSize), m.ArchiveSize)
	assert.Equal(t, r.SourceChecksum().String(), m.SourceChecksum)
	assert.NotEmpty(t, m.Codecs)

	af, err := os.Open(path)
	require.NoError(t, err)
	defer af.Close()
	sum, err := CalculateChecksum(af)
	require.NoError(t, err)
	assert.Len(t, sum, 64)
}
