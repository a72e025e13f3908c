package backend

import "time"

// AudioRecord indexes an uploaded recording by its asset path.
type AudioRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"uniqueIndex;not null" json:"path"`
	Level     string    `gorm:"index" json:"level"`
	Unit      string    `json:"unit"`
	Char      string    `gorm:"index" json:"char"`
	Type      string    `gorm:"index" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName implements gorm's tabler.
func (AudioRecord) TableName() string { return "audio_records" }

// UserProgress records one completed character for a user.
type UserProgress struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"index;not null" json:"username"`
	Char        string    `json:"char"`
	Level       string    `json:"level"`
	Unit        string    `json:"unit"`
	CompletedAt time.Time `json:"completed_at"`
}

// TableName implements gorm's tabler.
func (UserProgress) TableName() string { return "user_progress" }

// AppUser is a named learner. There is no authentication.
type AppUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName implements gorm's tabler.
func (AppUser) TableName() string { return "app_users" }
