package domain

import "time"

// Status of a pending notification
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the four known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// PendingNotification is one "something changed for this user" signal.
// Rows are kept after completion as an audit trail.
type PendingNotification struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserEmail    string    `json:"user_email" gorm:"index;not null"`
	DeltaCursor  string    `json:"delta_cursor" gorm:"not null"`
	Status       Status    `json:"status" gorm:"index;not null;default:pending"`
	Attempts     int       `json:"attempts" gorm:"not null;default:0"`
	ErrorMessage *string   `json:"error_message,omitempty" gorm:"type:text"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PendingNotification) TableName() string {
	return "pending_notifications"
}
