package asset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediaforge/mediaforge/internal/ffmpeg"
	"github.com/mediaforge/mediaforge/internal/task"
	"github.com/mediaforge/mediaforge/pkg/logger"
)

var log = logger.Get("AssetStore")

// MediaAsset is one uploaded media file. The stored path is always derived
// from the asset ID, never from the client-supplied filename, so a malicious
// upload name can never escape the upload directory.
type MediaAsset struct {
	ID           uuid.UUID
	Path         string
	Duration     time.Duration
	NeedsExtract bool
	UploadedAt   time.Time
}

type prober interface {
	ProbeFile(path string) (*ffmpeg.FileInfo, error)
}

// Store holds uploaded assets in memory, mirroring the ephemeral task
// registry: an asset lives only as long as the process (or until cleanup
// removes it along with its derived outputs).
type Store struct {
	mutex      sync.RWMutex
	assets     map[uuid.UUID]*MediaAsset
	uploadPath string
	prober     prober
}

var extMatcher = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,8}$`)

func NewStore(uploadPath string, prober prober) (*Store, error) {
	if info, err := os.Stat(uploadPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("upload path '%s' is not a directory", uploadPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(uploadPath, os.ModePerm); err != nil {
			return nil, fmt.Errorf("upload path '%s' could not be created: %w", uploadPath, err)
		}
	} else {
		return nil, fmt.Errorf("upload path '%s' could not be accessed: %w", uploadPath, err)
	}

	return &Store{
		assets:     make(map[uuid.UUID]*MediaAsset),
		uploadPath: uploadPath,
		prober:     prober,
	}, nil
}

// Save persists the uploaded content to disk under a core-generated name,
// probes it, and registers the resulting asset. Uploads carrying no audio
// stream are rejected; a container carrying a video stream is flagged as
// needing an audio-only extraction before editing.
func (store *Store) Save(filename string, content io.Reader) (MediaAsset, error) {
	id := uuid.New()
	destination := filepath.Join(store.uploadPath, id.String()+sanitizeExt(filename))

	file, err := os.Create(destination)
	if err != nil {
		return MediaAsset{}, task.NewError(task.IOFailure, "failed to create upload destination: %s", err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(destination)
		return MediaAsset{}, task.NewError(task.IOFailure, "failed to write upload: %s", err)
	}
	file.Close()

	info, err := store.prober.ProbeFile(destination)
	if err != nil {
		os.Remove(destination)
		return MediaAsset{}, task.NewError(task.InvalidSource, "uploaded file is not probeable media: %s", err)
	}
	if !info.HasAudio {
		os.Remove(destination)
		return MediaAsset{}, task.NewError(task.InvalidSource, "uploaded file contains no audio stream")
	}

	record := &MediaAsset{
		ID:           id,
		Path:         destination,
		Duration:     info.Duration,
		NeedsExtract: info.HasVideo,
		UploadedAt:   time.Now(),
	}

	store.mutex.Lock()
	store.assets[id] = record
	store.mutex.Unlock()

	log.Emit(logger.NEW, "Stored asset %s (duration=%s extract=%t)\n", id, record.Duration, record.NeedsExtract)
	return *record, nil
}

func (store *Store) Get(id uuid.UUID) (MediaAsset, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	record, ok := store.assets[id]
	if !ok {
		return MediaAsset{}, task.NewError(task.NotFound, "no asset with ID %s", id)
	}

	return *record, nil
}

func (store *Store) All() []MediaAsset {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	records := make([]MediaAsset, 0, len(store.assets))
	for _, record := range store.assets {
		records = append(records, *record)
	}

	return records
}

// Remove deletes the asset record and its backing file. Removing an unknown
// ID succeeds silently.
func (store *Store) Remove(id uuid.UUID) error {
	store.mutex.Lock()
	record, ok := store.assets[id]
	if ok {
		delete(store.assets, id)
	}
	store.mutex.Unlock()

	if !ok {
		return nil
	}

	if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return task.NewError(task.IOFailure, "failed to remove asset file: %s", err)
	}

	log.Emit(logger.REMOVE, "Removed asset %s\n", id)
	return nil
}

// sanitizeExt extracts a safe file extension from a client-supplied name.
// Anything that is not a short alphanumeric extension is discarded.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !extMatcher.MatchString(ext) {
		return ""
	}

	return ext
}
