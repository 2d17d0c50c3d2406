package models

// AssetStatus represents the transcoding lifecycle state of a lesson's video.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	// AssetStalled marks an asset whose reconciliation budget was exhausted
	// (or the provider reported a hard encoding failure) without reaching
	// ready. Stalled assets are retriable by re-ingesting the lesson.
	AssetStalled AssetStatus = "stalled"
)

// IsValid returns true if the status is a known AssetStatus.
func (s AssetStatus) IsValid() bool {
	switch s {
	case AssetPending, AssetProcessing, AssetReady, AssetStalled:
		return true
	}
	return false
}

// Terminal returns true if the reconciliation loop has nothing left to do.
func (s AssetStatus) Terminal() bool {
	return s == AssetReady || s == AssetStalled
}

// VideoAsset tracks one lesson's video and its transcoding lifecycle.
// At most one asset exists per lesson.
type VideoAsset struct {
	// Keys
	PK     string `dynamodbav:"pk" json:"-"`
	SK     string `dynamodbav:"sk" json:"-"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"-"`

	// Attributes
	AssetID         string      `dynamodbav:"asset_id" json:"assetId"`
	LessonID        string      `dynamodbav:"lesson_id" json:"lessonId"`
	RemoteVideoID   string      `dynamodbav:"remote_video_id" json:"remoteVideoId"`
	Status          AssetStatus `dynamodbav:"status" json:"status"`
	DurationSeconds int         `dynamodbav:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	ThumbnailURL    string      `dynamodbav:"thumbnail_url,omitempty" json:"thumbnailUrl,omitempty"`
	// EmbedURL is a best-effort default embed link recorded at ingest time.
	// Playback must go through the signed URL generator; this field is not
	// access control.
	EmbedURL string `dynamodbav:"embed_url,omitempty" json:"embedUrl,omitempty"`
	// SourceKey locates the archived raw upload in S3. Empty when
	// archiving is disabled or the video was uploaded provider-direct.
	SourceKey string `dynamodbav:"source_key,omitempty" json:"-"`
	CreatedAt string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updated_at" json:"updatedAt"`
}

// StalledAssetEvent is published to the operator queue when an asset stops
// reconciling without reaching ready.
type StalledAssetEvent struct {
	RemoteVideoID string `json:"remoteVideoId"`
	LessonID      string `json:"lessonId"`
	Attempts      int    `json:"attempts"`
	Reason        string `json:"reason"`
}

// Validate checks that the event carries enough to locate the asset.
func (e *StalledAssetEvent) Validate() error {
	if e.RemoteVideoID == "" {
		return ErrMissingRemoteVideoID
	}
	if e.LessonID == "" {
		return ErrMissingLessonID
	}
	return nil
}
