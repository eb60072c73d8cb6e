package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"musicbox/logger"
	"musicbox/model"

	"gorm.io/gorm"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	// ListTracks returns tracks newest first. A non-empty term keeps only
	// titles containing it, case-insensitively.
	ListTracks(ctx context.Context, term string) ([]*model.Track, error)
	DeleteTrack(ctx context.Context, id int64) error
	ListStorageNames(ctx context.Context) ([]string, error)
}

// gormTrackRepository implements TrackRepository on top of gorm.
type gormTrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a new gorm backed TrackRepository.
func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrack inserts the track inside a transaction and fills in its ID.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("User").Create(track).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("failed to create track: duplicate storage name %s: %w", track.Filename, err)
		}
		return fmt.Errorf("failed to create track: %w", err)
	}
	logger.Debug("track created", logger.Int64("trackId", track.ID), logger.String("title", track.Title))
	return nil
}

// GetTrackByID retrieves a track by its ID, or nil if there is none.
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Preload("User").First(&track, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to get track by ID %d: %w", id, err)
	}
	return &track, nil
}

// likeEscaper escapes LIKE metacharacters using '!' which needs no quoting
// in MySQL, PostgreSQL or SQLite string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ListTracks retrieves tracks ordered by upload date, newest first.
func (r *gormTrackRepository) ListTracks(ctx context.Context, term string) ([]*model.Track, error) {
	query := r.db.WithContext(ctx).Preload("User")
	if term != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		query = query.Where("search_title LIKE ? ESCAPE '!'", pattern)
	}

	tracks := make([]*model.Track, 0)
	if err := query.Order("upload_date DESC").Order("id DESC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks (term %q): %w", term, err)
	}
	return tracks, nil
}

// DeleteTrack permanently removes the row.
func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id int64) error {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("id = ?", id).Delete(&model.Track{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete track %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStorageNames returns every stored filename referenced by a row.
func (r *gormTrackRepository) ListStorageNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&model.Track{}).Pluck("filename", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list storage names: %w", err)
	}
	return names, nil
}
