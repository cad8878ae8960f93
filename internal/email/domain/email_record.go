package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// StoredAttachment is the persisted view of an uploaded attachment.
// Raw bytes never reach the database, only the download URL.
type StoredAttachment struct {
	AttachmentRef string `json:"attachment_ref"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type"`
	Size          int64  `json:"size"`
	DownloadURL   string `json:"download_url"`
}

// AttachmentList keeps attachments ordered inside a single JSON column so the
// record and its attachments are written by one INSERT.
type AttachmentList []StoredAttachment

// Value implements driver.Valuer
func (l AttachmentList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*l = AttachmentList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*l = AttachmentList{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// EmailRecord is the durable, normalized copy of one upstream message.
// (UserID, MessageID) is unique; a record is written once and never updated.
type EmailRecord struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	UserID      string         `json:"user_id" gorm:"uniqueIndex:idx_email_records_user_message;not null"`
	MessageID   string         `json:"message_id" gorm:"uniqueIndex:idx_email_records_user_message;not null"`
	HistoryID   string         `json:"history_id"`
	Subject     string         `json:"subject"`
	From        string         `json:"from" gorm:"column:from_address"`
	To          StringArray    `json:"to" gorm:"column:to_addresses;type:text"`
	Date        *time.Time     `json:"date,omitempty" gorm:"index"`
	BodyHTML    string         `json:"body_html" gorm:"type:text"`
	BodyText    string         `json:"body_text" gorm:"type:text"`
	Labels      StringArray    `json:"labels" gorm:"type:text"`
	Snippet     string         `json:"snippet"`
	Attachments AttachmentList `json:"attachments" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName specifies the table name for GORM
func (EmailRecord) TableName() string {
	return "email_records"
}
