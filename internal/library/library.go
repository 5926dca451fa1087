// Package library persists finished downloads in a local SQLite database
// so the collection survives restarts and queue cleanups.
package library

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipy/host/internal/download"
	"clipy/host/internal/model"
)

var ErrNotFound = errors.New("library entry not found")

// Video is a row in the library table. The same platform video downloaded
// to two different files counts as two entries; re-downloading over the
// same file updates in place.
type Video struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VideoID      string    `gorm:"index:idx_video_file,unique" json:"video_id"`
	Title        string    `json:"title"`
	Channel      string    `json:"channel"`
	URL          string    `json:"url"`
	FilePath     string    `gorm:"index:idx_video_file,unique" json:"file_path"`
	Thumbnail    string    `json:"thumbnail"`
	Duration     float64   `json:"duration"`
	FileSize     int64     `json:"file_size"`
	Format       string    `json:"format"`
	Quality      string    `json:"quality"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// HistoryEntry records every download attempt, successful or not.
type HistoryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	TotalVideos   int64   `json:"total_videos"`
	TotalSize     int64   `json:"total_size"`
	TotalDuration float64 `json:"total_duration"`
}

type Service struct {
	db  *gorm.DB
	log *slog.Logger
}

var _ download.CompletionRecorder = (*Service)(nil)

func NewService(dbPath string, slogger *slog.Logger) (*Service, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Video{}, &HistoryEntry{}); err != nil {
		return nil, err
	}
	return &Service{db: db, log: slogger}, nil
}

// RecordCompleted upserts a finished download into the library and appends
// a history row. Called by the download service on completion.
func (s *Service) RecordCompleted(rec model.DownloadRecord) error {
	entry := Video{
		VideoID:      download.ExtractVideoID(rec.URL),
		Title:        rec.Title,
		URL:          rec.URL,
		FilePath:     rec.FilePath,
		Thumbnail:    rec.Thumbnail,
		FileSize:     rec.FileSize,
		Format:       rec.Options.Format,
		Quality:      rec.Options.Quality,
		DownloadedAt: time.Now().UTC(),
	}
	if entry.Title == "" {
		entry.Title = rec.URL
	}

	var existing Video
	err := s.db.Where("video_id = ? AND file_path = ?", entry.VideoID, entry.FilePath).First(&existing).Error
	switch {
	case err == nil:
		entry.ID = existing.ID
		if err := s.db.Save(&entry).Error; err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(&entry).Error; err != nil {
			return err
		}
	default:
		return err
	}

	hist := HistoryEntry{
		URL:       rec.URL,
		Title:     entry.Title,
		Status:    string(rec.Status),
		CreatedAt: time.Now().UTC(),
	}
	return s.db.Create(&hist).Error
}

// RecordFailed appends a history row for a failed attempt without touching
// the library table.
func (s *Service) RecordFailed(rec model.DownloadRecord) error {
	hist := HistoryEntry{
		URL:       rec.URL,
		Title:     rec.Title,
		Status:    string(rec.Status),
		Error:     rec.Error,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.Create(&hist).Error
}

// List returns library entries newest first.
func (s *Service) List(limit, offset int) ([]Video, error) {
	q := s.db.Order("downloaded_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	var out []Video
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Search matches title and channel with a case-insensitive substring.
func (s *Service) Search(query string, limit int) ([]Video, error) {
	like := "%" + query + "%"
	q := s.db.Where("title LIKE ? OR channel LIKE ?", like, like).Order("downloaded_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Video
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(id uint) (Video, error) {
	var v Video
	err := s.db.First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *Service) Rename(id uint, title string) (Video, error) {
	v, err := s.Get(id)
	if err != nil {
		return Video{}, err
	}
	v.Title = title
	if err := s.db.Save(&v).Error; err != nil {
		return Video{}, err
	}
	return v, nil
}

// Delete removes a library entry. deleteFile also removes the media file
// from disk; a file already gone is not an error.
func (s *Service) Delete(id uint, deleteFile bool) error {
	v, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(&Video{}, id).Error; err != nil {
		return err
	}
	if deleteFile && v.FilePath != "" {
		if err := os.Remove(v.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("delete library file", "path", v.FilePath, "error", err)
		}
	}
	return nil
}

// DeleteMany removes a batch of entries and reports how many existed.
// Unknown ids are skipped rather than failing the batch.
func (s *Service) DeleteMany(ids []uint, deleteFiles bool) (int, error) {
	deleted := 0
	for _, id := range ids {
		err := s.Delete(id, deleteFiles)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Service) Stats() (Stats, error) {
	var st Stats
	if err := s.db.Model(&Video{}).Count(&st.TotalVideos).Error; err != nil {
		return Stats{}, err
	}
	row := s.db.Model(&Video{}).Select("COALESCE(SUM(file_size), 0), COALESCE(SUM(duration), 0)").Row()
	if err := row.Scan(&st.TotalSize, &st.TotalDuration); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// History returns download attempts newest first.
func (s *Service) History(limit int) ([]HistoryEntry, error) {
	q := s.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []HistoryEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ClearHistory() error {
	return s.db.Where("1 = 1").Delete(&HistoryEntry{}).Error
}

// Export serializes the whole library as JSON for backup.
func (s *Service) Export() ([]byte, error) {
	videos, err := s.List(0, 0)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(videos, "", "  ")
}

func (s *Service) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
