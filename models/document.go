package models

import "time"

// Document statuses
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Supported file types
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeTXT  = "txt"
	FileTypeMD   = "md"
)

// Document represents one uploaded file
type Document struct {
	ID           string    `bson:"_id" json:"id"`
	UploadID     string    `bson:"upload_id" json:"upload_id"`
	Filename     string    `bson:"filename" json:"filename"`
	FileType     string    `bson:"file_type" json:"file_type"`
	ByteSize     int64     `bson:"byte_size" json:"byte_size"`
	PageCount    int       `bson:"page_count" json:"page_count"`
	ContentHash  string    `bson:"content_hash,omitempty" json:"content_hash,omitempty"`
	StoragePath  string    `bson:"storage_path,omitempty" json:"storage_path,omitempty"`
	Status       string    `bson:"status" json:"status"`
	ErrorMessage string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// IsSupportedFileType reports whether ft is an ingestible format.
func IsSupportedFileType(ft string) bool {
	switch ft {
	case FileTypePDF, FileTypeDOCX, FileTypeTXT, FileTypeMD:
		return true
	}
	return false
}
