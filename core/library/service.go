// Package library implements the upload-and-serve pipeline: uploads are
// validated, written to the upload root under a random storage name, then
// recorded in the metadata store.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"musicbox/core/access"
	"musicbox/core/naming"
	"musicbox/logger"
	"musicbox/model"
	"musicbox/repository"
	"musicbox/storage"
)

// maxTitleRunes matches the width of tracks.title.
const maxTitleRunes = 100

// UploadRequest is a validated multipart upload handed over by the HTTP layer.
type UploadRequest struct {
	Title    string
	Filename string    // client supplied, untrusted
	Body     io.Reader // nil when the form had no file part
}

// Stream is an open stored file ready to be sent to a client.
type Stream struct {
	io.ReadCloser
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Service composes naming, file persistence and the metadata store.
type Service struct {
	tracks repository.TrackRepository
	disk   *storage.Disk
	policy naming.Policy
}

// NewService creates a Service.
func NewService(tracks repository.TrackRepository, disk *storage.Disk, policy naming.Policy) *Service {
	return &Service{tracks: tracks, disk: disk, policy: policy}
}

func transition(from, to State, detail string) {
	logger.Debug("upload pipeline",
		logger.String("from", string(from)),
		logger.String("to", string(to)),
		logger.String("detail", detail))
}

// Upload runs Received → Validated → Persisted → Recorded → Confirmed.
//
// The file is always written before the row is committed. If the commit
// fails the file stays on disk as an orphan; this is logged and reported
// by Orphans but never cleaned up automatically. Nothing is retried.
func (s *Service) Upload(ctx context.Context, actor access.Actor, req UploadRequest) (*model.Track, error) {
	// Received
	if !access.CanUpload(actor) {
		transition(StateReceived, StateRejected, "unauthorized")
		return nil, rejected(ErrUnauthorized)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		transition(StateReceived, StateRejected, "title")
		return nil, rejected(fmt.Errorf("%w: title", ErrMissingField))
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		transition(StateReceived, StateRejected, "title length")
		return nil, rejected(fmt.Errorf("%w: title longer than %d characters", ErrInvalidField, maxTitleRunes))
	}
	if req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		transition(StateReceived, StateRejected, "file")
		return nil, rejected(fmt.Errorf("%w: file", ErrMissingField))
	}
	transition(StateReceived, StateValidated, req.Filename)

	// Validated: the extension is checked before anything touches the disk.
	ext, err := s.policy.Extension(req.Filename)
	if err != nil {
		transition(StateValidated, StateRejected, req.Filename)
		return nil, rejected(err)
	}
	storageName, err := naming.NewStorageName(ext)
	if err != nil {
		return nil, failed(fmt.Errorf("%w: %v", ErrStorageWriteFailed, err))
	}
	size, err := s.disk.Save(storageName, req.Body)
	if err != nil {
		transition(StateValidated, StateFailed, storageName)
		logger.Error("failed to store upload",
			logger.String("storageName", storageName),
			logger.Int64("userId", actor.ID),
			logger.ErrorField(err))
		return nil, failed(err)
	}
	transition(StateValidated, StatePersisted, storageName)

	// Persisted
	track := &model.Track{
		Title:            title,
		Filename:         storageName,
		OriginalFilename: naming.SanitizeDisplayName(req.Filename),
		FileSize:         size,
		UserID:           actor.ID,
	}
	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		transition(StatePersisted, StateFailed, storageName)
		logger.Warn("track row not recorded, leaving orphan file",
			logger.String("storageName", storageName),
			logger.Int64("size", size),
			logger.Int64("userId", actor.ID),
			logger.ErrorField(err))
		return nil, failed(fmt.Errorf("%w: %v", ErrRecordingFailed, err))
	}
	transition(StatePersisted, StateRecorded, storageName)

	// Recorded → Confirmed
	track.User = &model.User{ID: actor.ID, Username: actor.Username}
	transition(StateRecorded, StateConfirmed, storageName)
	logger.Info("track uploaded",
		logger.Int64("trackId", track.ID),
		logger.Int64("userId", actor.ID),
		logger.String("storageName", storageName),
		logger.Int64("size", size))
	return track, nil
}

// Delete removes a track owned by actor: the row first, then the file.
// Callers that are not the owner get ErrForbidden and nothing changes.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id int64) (*model.Track, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}
	track, err := s.tracks.GetTrackByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, ErrNotFound
	}
	if !access.CanDelete(track, actor) {
		logger.Warn("delete denied",
			logger.Int64("trackId", id),
			logger.Int64("ownerId", track.UserID),
			logger.Int64("actorId", actor.ID))
		return nil, ErrForbidden
	}

	if err := s.tracks.DeleteTrack(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.disk.Remove(track.Filename); err != nil {
		logger.Warn("track row deleted but file removal failed, leaving orphan file",
			logger.Int64("trackId", id),
			logger.String("storageName", track.Filename),
			logger.ErrorField(err))
	}
	logger.Info("track deleted", logger.Int64("trackId", id), logger.Int64("userId", actor.ID))
	return track, nil
}

// List returns tracks newest first, optionally filtered by a title substring.
func (s *Service) List(ctx context.Context, term string) ([]*model.Track, error) {
	return s.tracks.ListTracks(ctx, strings.TrimSpace(term))
}

// Stream opens a stored file by its storage name. The caller must close it.
// Only generated storage names are served, never temp files or strays.
func (s *Service) Stream(name string) (*Stream, error) {
	if !naming.IsStorageName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f, info, err := s.disk.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}
	return &Stream{
		ReadCloser:  f,
		Name:        name,
		Size:        info.Size(),
		ContentType: naming.ContentType(name),
		ModTime:     info.ModTime(),
	}, nil
}

// Orphans lists stored files that no track row refers to.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	files, err := s.disk.List()
	if err != nil {
		return nil, err
	}
	known, err := s.tracks.ListStorageNames(ctx)
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]struct{}, len(known))
	for _, name := range known {
		referenced[name] = struct{}{}
	}
	orphans := make([]string, 0)
	for _, name := range files {
		if _, ok := referenced[name]; !ok {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}
