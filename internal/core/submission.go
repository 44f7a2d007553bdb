package core

import "encoding/json"

// Submission is the typed shape of a submitted data object. It is decoded
// once at the boundary (ingest.DecodeSubmission); downstream components
// branch on this shape and never re-check raw JSON presence. Optional fields
// that need absent-vs-empty distinction are pointers.
type Submission struct {
	Type        string
	Entity      string
	PublicID    string
	Content     json.RawMessage
	PublishedAt *int64
	Version     *VersionSpec
	Permissions *PermissionsSpec
	Mentions    []PostRef
	Refs        []PostRef
	Attachments []AttachmentRef
}

// VersionSpec carries the declared version metadata of a submission.
type VersionSpec struct {
	Parents []ParentRef
}

// ParentRef names a prior post version the submission supersedes.
type ParentRef struct {
	Version string `json:"version"`
	Post    string `json:"post"`
}

// PostRef is a mention or ref entry. A nil Entity means the entry omitted it
// and defaults to the originating post's own entity.
type PostRef struct {
	Entity *string `json:"entity,omitempty"`
	Post   string  `json:"post,omitempty"`
	Type   string  `json:"type,omitempty"`
	Public *bool   `json:"public,omitempty"`
}

// PermissionsSpec is an explicitly submitted permissions object. Its absence
// on a Submission (nil pointer) means default-public.
type PermissionsSpec struct {
	Public   bool
	Entities []string
}

// AttachmentRef is a caller-declared reference to previously uploaded binary
// content, or (in notification mode) an already-resolved descriptor.
type AttachmentRef struct {
	Digest      string `json:"digest"`
	Size        int64  `json:"size,omitempty"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	ContentType string `json:"content_type"`
}

// Upload is a raw binary part uploaded alongside the data object. Digest
// and Size, when set, were computed while the part was read; the builder
// recomputes them from Data otherwise.
type Upload struct {
	Name        string
	Category    string
	ContentType string
	Digest      string
	Size        int64
	Data        []byte
}

// Request is the normalized input the excluded routing layer hands to the
// ingestion core: an authenticated actor, the decoded submission and any
// out-of-band uploads.
type Request struct {
	User       *User
	Submission *Submission
	Uploads    []Upload
}
