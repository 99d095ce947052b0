package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/br0z1/social-media-app/internal/geo"
)

// EngagementLevel buckets posts by how much interaction they have drawn.
// EngagementAny is only meaningful as a query floor.
type EngagementLevel int

const (
	EngagementAny EngagementLevel = iota
	EngagementLow
	EngagementMedium
	EngagementHigh
)

func (e EngagementLevel) String() string {
	switch e {
	case EngagementLow:
		return "low"
	case EngagementMedium:
		return "medium"
	case EngagementHigh:
		return "high"
	default:
		return "any"
	}
}

// MarshalText renders the level by name in JSON payloads.
func (e EngagementLevel) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText accepts level names or their numeric keys.
func (e *EngagementLevel) UnmarshalText(text []byte) error {
	level, err := ParseEngagementLevel(string(text))
	if err != nil {
		return err
	}
	*e = level
	return nil
}

// ParseEngagementLevel parses "low", "medium", "high" or "1".."3".
func ParseEngagementLevel(s string) (EngagementLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "0":
		return EngagementAny, nil
	case "low", "1":
		return EngagementLow, nil
	case "medium", "2":
		return EngagementMedium, nil
	case "high", "3":
		return EngagementHigh, nil
	}
	return EngagementAny, fmt.Errorf("unknown engagement level %q", s)
}

// Media types a post can carry.
const (
	MediaTypeNone  = "none"
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Post is a user post anchored to a location. PartitionKey is the
// precision-5 geohash of Coordinates and SortKey the creation time in epoch
// milliseconds; together they form the bucket/time index the feed samples.
type Post struct {
	PostID       string      `gorm:"primaryKey;type:varchar(64)" json:"postId"`
	PartitionKey string      `gorm:"size:12;not null;index:idx_posts_bucket_time,priority:1" json:"partitionKey"`
	SortKey      int64       `gorm:"not null;index:idx_posts_bucket_time,priority:2,sort:desc" json:"sortKey"`
	Coordinates  Coordinates `gorm:"embedded;embeddedPrefix:coord_" json:"coordinates"`

	Content            string         `gorm:"type:text" json:"content"`
	AuthorID           string         `gorm:"index;not null" json:"authorId"`
	AuthorUsername     string         `gorm:"not null" json:"authorUsername"`
	AuthorProfileImage string         `json:"authorProfileImage,omitempty"`
	MediaURLs          MediaList      `json:"mediaUrls"`
	MediaType          string         `gorm:"default:none" json:"mediaType"`
	SubjectCategory    string         `gorm:"index" json:"subjectCategory,omitempty"`

	EngagementLevel EngagementLevel `gorm:"not null;default:1" json:"engagementLevel"`
	LikeCount       int             `gorm:"default:0" json:"likeCount"`
	CommentCount    int             `gorm:"default:0" json:"commentCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MediaList stores media URLs as a postgres text[] column, falling back to
// the array literal in text for other dialects.
type MediaList []string

// Scan implements sql.Scanner
func (l *MediaList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

// Value implements driver.Valuer
func (l MediaList) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	return pq.StringArray(l).Value()
}

// GormDBDataType picks the column type per dialect.
func (MediaList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Coordinates is where a post was made.
type Coordinates struct {
	Lat float64 `gorm:"not null" json:"lat"`
	Lng float64 `gorm:"not null" json:"lng"`
}

// Point converts to the geo package representation.
func (c Coordinates) Point() geo.Point {
	return geo.Point{Lat: c.Lat, Lng: c.Lng}
}

// TableName pins the table name.
func (Post) TableName() string {
	return "posts"
}

// BeforeCreate fills the identity and index keys of a new post.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	p.Normalize(time.Now())
	return nil
}

// Normalize assigns an id, partition key, sort key and defaults where they
// are missing.
func (p *Post) Normalize(now time.Time) {
	if p.PostID == "" {
		p.PostID = uuid.New().String()
	}
	if p.PartitionKey == "" {
		p.PartitionKey = geo.BucketFor(p.Coordinates.Point())
	}
	if p.SortKey == 0 {
		p.SortKey = now.UnixMilli()
	}
	if p.EngagementLevel == EngagementAny {
		p.EngagementLevel = EngagementLow
	}
	if p.MediaType == "" {
		p.MediaType = MediaTypeNone
	}
	if p.MediaURLs == nil {
		p.MediaURLs = MediaList{}
	}
}

// Summary is the projection the feed sampler works with.
func (p *Post) Summary() PostSummary {
	return PostSummary{
		PostID:          p.PostID,
		PartitionKey:    p.PartitionKey,
		SortKey:         p.SortKey,
		Coordinates:     p.Coordinates,
		EngagementLevel: p.EngagementLevel,
	}
}

// PostSummary is the subset of a post returned by bucket queries.
type PostSummary struct {
	PostID          string          `json:"postId"`
	PartitionKey    string          `json:"partitionKey"`
	SortKey         int64           `json:"sortKey"`
	Coordinates     Coordinates     `json:"coordinates"`
	EngagementLevel EngagementLevel `json:"engagementLevel"`
}
