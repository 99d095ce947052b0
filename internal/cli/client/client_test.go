package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestNextBatch(t *testing.T) {
	var got map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/next-batch", r.URL.Path)
		assert.Equal(t, "sess-1", r.Header.Get(sessionIDHeader))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(sessionIDHeader, "sess-1")
		w.Header().Set(exhaustedHeader, "true")
		_ = json.NewEncoder(w).Encode([]models.Post{{PostID: "p1"}, {PostID: "p2"}})
	})

	batch, err := c.NextBatch(context.Background(), NextBatchRequest{
		SessionID: "sess-1",
		Sphere:    &geo.Sphere{Center: geo.Point{Lat: 40.7, Lng: -73.99}, Radius: 2000},
		Count:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", batch.SessionID)
	assert.True(t, batch.Exhausted)
	require.Len(t, batch.Posts, 2)
	assert.Equal(t, "p2", batch.Posts[1].PostID)

	assert.Equal(t, float64(2), got["count"])
	coords, ok := got["coordinates"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2000), coords["radius"])
}

func TestNextBatchOmitsMissingSphere(t *testing.T) {
	var got map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	batch, err := c.NextBatch(context.Background(), NextBatchRequest{SessionID: "s"})
	require.NoError(t, err)
	assert.Empty(t, batch.Posts)
	assert.False(t, batch.Exhausted)
	assert.NotContains(t, got, "coordinates")
}

func TestAPIErrorIsParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_SPHERE","message":"radius must be positive"}`))
	})

	_, err := c.NextBatch(context.Background(), NextBatchRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_SPHERE", apiErr.Code)
}

func TestNonJSONErrorFallsBack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.GetPost(context.Background(), "p1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unknown_error", apiErr.Code)
	assert.Contains(t, apiErr.Message, "upstream down")
}

func TestGetPostsAndEndSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/posts/batch":
			var req struct {
				PostIDs []string `json:"postIds"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"a", "b"}, req.PostIDs)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]models.Post{{PostID: "a"}, {PostID: "b"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/feed/sessions/s1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	posts, err := c.GetPosts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.NoError(t, c.EndSession(context.Background(), "s1"))
}

func TestCreatePostSendsForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hello", r.FormValue("content"))
		assert.Equal(t, "edgar", r.FormValue("authorUsername"))
		assert.Equal(t, "high", r.FormValue("engagementLevel"))

		var p geo.Point
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("coordinates")), &p))
		assert.Equal(t, 40.7, p.Lat)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Post{PostID: "new", Content: "hello"})
	})

	post, err := c.CreatePost(context.Background(), NewPost{
		Content:         "hello",
		AuthorID:        "u1",
		AuthorUsername:  "edgar",
		Point:           geo.Point{Lat: 40.7, Lng: -73.99},
		EngagementLevel: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "new", post.PostID)
}
