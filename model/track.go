package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Track represents one uploaded audio file.
//
// Filename is the generated storage name and the only key used to find the
// bytes on disk. It is never derived from user input other than the extension.
type Track struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title            string    `gorm:"type:varchar(100);not null" json:"title"`
	Filename         string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"filename"`
	OriginalFilename string    `gorm:"type:varchar(100);not null" json:"original_filename"` // display only
	FileSize         int64     `json:"file_size"`
	UploadDate       time.Time `gorm:"autoCreateTime;index" json:"upload_date"`
	UserID           int64     `gorm:"not null;index" json:"user_id"`
	// SearchTitle is Title lower-cased with Unicode folding; SQLite's
	// LOWER() only folds ASCII, so search matches against this column.
	SearchTitle string `gorm:"type:varchar(100);not null;default:''" json:"-"`
	User        *User  `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定曲目表名
func (Track) TableName() string {
	return "tracks"
}

// BeforeSave keeps SearchTitle in step with Title.
func (t *Track) BeforeSave(tx *gorm.DB) error {
	t.SearchTitle = strings.ToLower(t.Title)
	return nil
}

// TrackResponse is the public JSON shape served by /api/music.
type TrackResponse struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	UploadDate       time.Time `json:"upload_date"`
	UserID           int64     `json:"user_id"`
	Uploader         string    `json:"uploader,omitempty"`
}

// ToResponse 转换为响应格式
func (t *Track) ToResponse() TrackResponse {
	resp := TrackResponse{
		ID:               t.ID,
		Title:            t.Title,
		Filename:         t.Filename,
		OriginalFilename: t.OriginalFilename,
		FileSize:         t.FileSize,
		UploadDate:       t.UploadDate,
		UserID:           t.UserID,
	}
	if t.User != nil {
		resp.Uploader = t.User.Username
	}
	return resp
}
