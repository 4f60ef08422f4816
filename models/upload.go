package models

import "time"

// Upload statuses
const (
	UploadStatusPending    = "pending"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
	UploadStatusPartial    = "partial"
)

// Upload represents a batch of files submitted together
type Upload struct {
	ID          string     `bson:"_id" json:"id"`
	BatchLabel  string     `bson:"batch_label,omitempty" json:"batch_label,omitempty"`
	Status      string     `bson:"status" json:"status"`
	Total       int        `bson:"total" json:"total"`
	Succeeded   int        `bson:"succeeded" json:"succeeded"`
	Failed      int        `bson:"failed" json:"failed"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Terminal reports whether the upload reached a final status.
func (u *Upload) Terminal() bool {
	switch u.Status {
	case UploadStatusCompleted, UploadStatusFailed, UploadStatusPartial:
		return true
	}
	return false
}

// Namespace returns the vector store namespace for this upload.
func (u *Upload) Namespace() string {
	return "upload:" + u.ID
}
