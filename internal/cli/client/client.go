package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"

	"github.com/br0z1/social-media-app/internal/cli/logger"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/telemetry"
)

const (
	sessionIDHeader = "X-Session-ID"
	exhaustedHeader = "X-Feed-Exhausted"
	userAgent       = "Spheres-CLI/0.1.0"
)

// APIError is an error response from the server
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%d] %s: %s (field: %s)", e.StatusCode, e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the spheres API
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL
func New(baseURL string, timeout time.Duration) *Client {
	hc := telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{
		ServiceName: "spheres-cli",
		Timeout:     timeout,
	})

	r := resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)

	r.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})
	r.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "took", resp.Time())
		return nil
	})

	return &Client{http: r}
}

// NextBatchRequest asks for the next posts of a session. A nil Sphere keeps
// the session's current one.
type NextBatchRequest struct {
	SessionID string      `json:"sessionId,omitempty"`
	SphereID  string      `json:"sphereId,omitempty"`
	Sphere    *geo.Sphere `json:"coordinates,omitempty"`
	Count     int         `json:"count,omitempty"`
}

// Batch is one next-batch response
type Batch struct {
	SessionID string
	Posts     []models.Post
	Exhausted bool
}

// NextBatch fetches the next posts for a session
func (c *Client) NextBatch(ctx context.Context, req NextBatchRequest) (*Batch, error) {
	var posts []models.Post
	r := c.http.R().SetContext(ctx).SetBody(req).SetResult(&posts)
	if req.SessionID != "" {
		r.SetHeader(sessionIDHeader, req.SessionID)
	}

	resp, err := r.Post("/api/posts/next-batch")
	if err := check(resp, err); err != nil {
		return nil, err
	}

	exhausted, _ := strconv.ParseBool(resp.Header().Get(exhaustedHeader))
	return &Batch{
		SessionID: resp.Header().Get(sessionIDHeader),
		Posts:     posts,
		Exhausted: exhausted,
	}, nil
}

// EndSession drops a session on the server
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("sessionId", sessionID).
		Delete("/api/feed/sessions/{sessionId}")
	return check(resp, err)
}

// GetPost fetches one post
func (c *Client) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("postId", postID).
		SetResult(&post).
		Get("/api/posts/{postId}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPosts resolves several posts in order
func (c *Client) GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error) {
	var posts []models.Post
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string][]string{"postIds": postIDs}).
		SetResult(&posts).
		Post("/api/posts/batch")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return posts, nil
}

// NewPost is the payload for CreatePost
type NewPost struct {
	Content         string
	AuthorID        string
	AuthorUsername  string
	Point           geo.Point
	EngagementLevel string
	Category        string
	MediaPaths      []string
}

// CreatePost uploads a post and its media as multipart form data
func (c *Client) CreatePost(ctx context.Context, p NewPost) (*models.Post, error) {
	coords := fmt.Sprintf(`{"lat":%s,"lng":%s}`,
		strconv.FormatFloat(p.Point.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Point.Lng, 'f', -1, 64))

	form := map[string]string{
		"content":        p.Content,
		"authorId":       p.AuthorID,
		"authorUsername": p.AuthorUsername,
		"coordinates":    coords,
	}
	if p.EngagementLevel != "" {
		form["engagementLevel"] = p.EngagementLevel
	}
	if p.Category != "" {
		form["subjectCategory"] = p.Category
	}

	var post models.Post
	r := c.http.R().SetContext(ctx).SetMultipartFormData(form).SetResult(&post)
	for _, path := range p.MediaPaths {
		r.SetFile("media", path)
	}

	resp, err := r.Post("/api/posts")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &post, nil
}

// check turns transport failures and error statuses into errors
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Code == "" {
		apiErr.Code = "unknown_error"
		apiErr.Message = string(resp.Body())
	}
	return apiErr
}
