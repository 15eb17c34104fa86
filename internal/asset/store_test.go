package asset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	info *ffmpeg.FileInfo
	err  error
}

func (prober *mockProber) ProbeFile(_ string) (*ffmpeg.FileInfo, error) {
	return prober.info, prober.err
}

func audioProber() *mockProber {
	return &mockProber{info: &ffmpeg.FileInfo{Duration: time.Second * 30, HasAudio: true}}
}

func Test_NewStore_CreatesMissingUploadDir(t *testing.T) {
	uploadPath := filepath.Join(t.TempDir(), "uploads")

	_, err := NewStore(uploadPath, audioProber())
	require.NoError(t, err)
	assert.DirExists(t, uploadPath)
}

func Test_NewStore_RejectsFileAtUploadPath(t *testing.T) {
	uploadPath := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(uploadPath, []byte("x"), 0o644))

	_, err := NewStore(uploadPath, audioProber())
	assert.Error(t, err)
}

func Test_Store_Save_RegistersProbedAsset(t *testing.T) {
	uploadPath := t.TempDir()
	store, err := NewStore(uploadPath, audioProber())
	require.NoError(t, err)

	saved, err := store.Save("song.mp3", strings.NewReader("audio bytes"))
	require.NoError(t, err)

	assert.Equal(t, time.Second*30, saved.Duration)
	assert.False(t, saved.NeedsExtract)
	assert.Equal(t, filepath.Join(uploadPath, saved.ID.String()+".mp3"), saved.Path)
	assert.FileExists(t, saved.Path)

	fetched, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Path, fetched.Path)
}

func Test_Store_Save_VideoContainerFlaggedForExtraction(t *testing.T) {
	prober := &mockProber{info: &ffmpeg.FileInfo{Duration: time.Minute, HasAudio: true, HasVideo: true}}
	store, err := NewStore(t.TempDir(), prober)
	require.NoError(t, err)

	saved, err := store.Save("clip.mp4", strings.NewReader("container bytes"))
	require.NoError(t, err)
	assert.True(t, saved.NeedsExtract)
}

func Test_Store_Save_RejectsUnprobeableUpload(t *testing.T) {
	prober := &mockProber{err: errors.New("moov atom not found")}
	uploadPath := t.TempDir()
	store, err := NewStore(uploadPath, prober)
	require.NoError(t, err)

	_, err = store.Save("junk.bin", strings.NewReader("not media"))
	require.Error(t, err)
	assert.Equal(t, task.InvalidSource, task.AsError(err, task.IOFailure).Kind)

	entries, err := os.ReadDir(uploadPath)
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected upload must not leave a file behind")
}

func Test_Store_Save_RejectsSilentUpload(t *testing.T) {
	prober := &mockProber{info: &ffmpeg.FileInfo{Duration: time.Minute, HasVideo: true}}
	store, err := NewStore(t.TempDir(), prober)
	require.NoError(t, err)

	_, err = store.Save("mute.mp4", strings.NewReader("video only"))
	require.Error(t, err)
	assert.Equal(t, task.InvalidSource, task.AsError(err, task.IOFailure).Kind)
}

func Test_Store_Save_ClientFilenameNeverShapesPath(t *testing.T) {
	uploadPath := t.TempDir()
	store, err := NewStore(uploadPath, audioProber())
	require.NoError(t, err)

	saved, err := store.Save("../../../etc/passwd", strings.NewReader("audio bytes"))
	require.NoError(t, err)

	assert.Equal(t, uploadPath, filepath.Dir(saved.Path))
	assert.Equal(t, saved.ID.String(), filepath.Base(saved.Path), "a hostile name contributes no extension at all")
}

func Test_Store_Remove_IsIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir(), audioProber())
	require.NoError(t, err)

	saved, err := store.Save("song.wav", strings.NewReader("audio bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(saved.ID))
	assert.NoFileExists(t, saved.Path)

	assert.NoError(t, store.Remove(saved.ID))
	assert.NoError(t, store.Remove(uuid.New()))
}

func Test_SanitizeExt(t *testing.T) {
	tests := map[string]string{
		"song.mp3":           ".mp3",
		"CLIP.MP4":           ".mp4",
		"archive.tar.gz":     ".gz",
		"noextension":        "",
		"trailingdot.":       "",
		"weird.mp3;rm -rf /": "",
		"long.verylongextension": "",
	}

	for filename, expected := range tests {
		assert.Equalf(t, expected, sanitizeExt(filename), "filename %q", filename)
	}
}
