package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Metadata merges the analysis of the input audio with the details of the
// generated track.
type Metadata struct {
	Transcription string   `json:"transcription,omitempty"`
	Mood          string   `json:"mood,omitempty"`
	Key           string   `json:"key,omitempty"`
	BPM           int      `json:"bpm,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Duration      float64  `json:"duration,omitempty"`
	Title         string   `json:"title,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// Song is a remix record. The output is set once, when the generation
// yields audio.
type Song struct {
	ID        string    `gorm:"primarykey" json:"id" csv:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at" csv:"created_at"`
	UpdatedAt time.Time `json:"-" csv:"-"`

	InputURL  string   `gorm:"not null;default:''" json:"input_url" csv:"input_url"`
	OutputURL *string  `json:"output_url" csv:"output_url"`
	Style     string   `gorm:"not null;default:''" json:"style" csv:"style"`
	Prompt    *string  `json:"prompt" csv:"prompt"`
	TaskID    string   `gorm:"index;not null;default:''" json:"task_id,omitempty" csv:"task_id"`
	Metadata  Metadata `gorm:"serializer:json;type:text" json:"metadata" csv:"-"`
}

// CreateSong registers a new song. An empty prompt is stored as null.
func (s *Store) CreateSong(ctx context.Context, inputURL, style, prompt string, md Metadata) (*Song, error) {
	now := s.now().UTC()
	v := &Song{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		CreatedAt: now,
		UpdatedAt: now,
		InputURL:  inputURL,
		Style:     style,
		Metadata:  md,
	}
	if prompt != "" {
		v.Prompt = &prompt
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to create Song: %w", err)
	}
	return v, nil
}

func (s *Store) GetSong(ctx context.Context, id string) (*Song, error) {
	var v Song
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get Song %s: %w", id, err)
	}
	return &v, nil
}

// GetSongByTask returns the song waiting for the given provider task.
func (s *Store) GetSongByTask(ctx context.Context, taskID string) (*Song, error) {
	if taskID == "" {
		return nil, ErrNotFound
	}
	var v Song
	if err := s.db.WithContext(ctx).First(&v, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get Song for task %s: %w", taskID, err)
	}
	return &v, nil
}

// SetTask links a song with its provider task.
func (s *Store) SetTask(ctx context.Context, id, taskID string) error {
	if err := s.db.WithContext(ctx).Model(&Song{}).
		Where("id = ?", id).
		Updates(map[string]any{"task_id": taskID, "updated_at": s.now().UTC()}).Error; err != nil {
		return fmt.Errorf("storage: failed to set task of Song %s: %w", id, err)
	}
	return nil
}

// SetOutput sets the output url of a song if it hasn't been set yet.
// Unknown songs are ignored.
func (s *Store) SetOutput(ctx context.Context, id, url string) error {
	if err := s.db.WithContext(ctx).Model(&Song{}).
		Where("id = ? AND output_url IS NULL", id).
		Updates(map[string]any{"output_url": url, "updated_at": s.now().UTC()}).Error; err != nil {
		return fmt.Errorf("storage: failed to set output of Song %s: %w", id, err)
	}
	return nil
}

// UpdateMetadata applies fn to the metadata of a song. Unknown songs are
// ignored.
func (s *Store) UpdateMetadata(ctx context.Context, id string, fn func(*Metadata)) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v Song
		if err := tx.First(&v, "id = ?", id).Error; err != nil {
			return err
		}
		fn(&v.Metadata)
		return tx.Model(&v).Select("metadata", "updated_at").Updates(&Song{
			Metadata:  v.Metadata,
			UpdatedAt: s.now().UTC(),
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: failed to update metadata of Song %s: %w", id, err)
	}
	return nil
}

// ListSongs returns songs newest first.
func (s *Store) ListSongs(ctx context.Context, filter ...Filter) ([]*Song, error) {
	vs := []*Song{}
	q := s.db.WithContext(ctx)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if err := q.Order("created_at desc").Order("id desc").Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list Songs: %w", err)
	}
	return vs, nil
}

// Clear deletes all songs.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Song{}).Error; err != nil {
		return fmt.Errorf("storage: failed to clear Songs: %w", err)
	}
	return nil
}
