package model

import (
	"time"
)

const (
	FileTypeProofImage = "proof_image"
)

type File struct {
	ID           string    `db:"id" json:"id"`
	Owner        string    `db:"owner" json:"owner"`    // Wallet address that uploaded the file
	GoalID       string    `db:"goal_id" json:"goalId"` // Goal the file is evidence for
	Type         string    `db:"type" json:"type"`
	Filename     string    `db:"filename" json:"filename"`
	OriginalName string    `db:"original_name" json:"originalName"`
	MimeType     string    `db:"mime_type" json:"mimeType"`
	Size         int64     `db:"size" json:"size"`
	StoragePath  string    `db:"storage_path" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
