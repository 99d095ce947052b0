package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/br0z1/social-media-app/internal/geo"
)

func TestParseEngagementLevel(t *testing.T) {
	tests := map[string]EngagementLevel{
		"low":    EngagementLow,
		"Medium": EngagementMedium,
		"3":      EngagementHigh,
		"":       EngagementAny,
	}
	for in, want := range tests {
		got, err := ParseEngagementLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEngagementLevel("viral")
	assert.Error(t, err)
}

func TestEngagementLevelJSON(t *testing.T) {
	data, err := json.Marshal(PostSummary{PostID: "p1", EngagementLevel: EngagementMedium})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"engagementLevel":"medium"`)

	var s PostSummary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, EngagementMedium, s.EngagementLevel)
}

func TestPostNormalize(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := &Post{Coordinates: Coordinates{Lat: 40.7831, Lng: -73.9712}}
	p.Normalize(now)

	assert.NotEmpty(t, p.PostID)
	assert.Equal(t, geo.BucketFor(geo.Point{Lat: 40.7831, Lng: -73.9712}), p.PartitionKey)
	assert.Equal(t, now.UnixMilli(), p.SortKey)
	assert.Equal(t, EngagementLow, p.EngagementLevel)
	assert.Equal(t, MediaTypeNone, p.MediaType)
	assert.NotNil(t, p.MediaURLs)

	id := p.PostID
	p.Normalize(now.Add(time.Hour))
	assert.Equal(t, id, p.PostID)
	assert.Equal(t, now.UnixMilli(), p.SortKey)
}

func TestPostSummary(t *testing.T) {
	p := Post{PostID: "p1", PartitionKey: "dr5ru", SortKey: 42, EngagementLevel: EngagementHigh}
	s := p.Summary()
	assert.Equal(t, "p1", s.PostID)
	assert.Equal(t, "dr5ru", s.PartitionKey)
	assert.Equal(t, int64(42), s.SortKey)
	assert.Equal(t, EngagementHigh, s.EngagementLevel)
}
