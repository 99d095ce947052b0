package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/models"
)

// Neighborhood is a named seeding area
type Neighborhood struct {
	Name    string
	Borough string
	Center  geo.Point
}

// NYCNeighborhoods are the default seeding areas
var NYCNeighborhoods = []Neighborhood{
	{"Midtown", "Manhattan", geo.Point{Lat: 40.7549, Lng: -73.9840}},
	{"Chinatown", "Manhattan", geo.Point{Lat: 40.7158, Lng: -73.9970}},
	{"East Village", "Manhattan", geo.Point{Lat: 40.7265, Lng: -73.9815}},
	{"Financial District", "Manhattan", geo.Point{Lat: 40.7075, Lng: -74.0113}},
	{"Greenwich Village", "Manhattan", geo.Point{Lat: 40.7336, Lng: -74.0027}},
	{"Upper West Side", "Manhattan", geo.Point{Lat: 40.7870, Lng: -73.9754}},
	{"Upper East Side", "Manhattan", geo.Point{Lat: 40.7736, Lng: -73.9566}},
	{"Harlem", "Manhattan", geo.Point{Lat: 40.8116, Lng: -73.9465}},
	{"Williamsburg", "Brooklyn", geo.Point{Lat: 40.7081, Lng: -73.9571}},
	{"Park Slope", "Brooklyn", geo.Point{Lat: 40.6710, Lng: -73.9814}},
	{"Bushwick", "Brooklyn", geo.Point{Lat: 40.6958, Lng: -73.9171}},
	{"Astoria", "Queens", geo.Point{Lat: 40.7644, Lng: -73.9235}},
	{"Long Island City", "Queens", geo.Point{Lat: 40.7447, Lng: -73.9485}},
	{"Mott Haven", "Bronx", geo.Point{Lat: 40.8091, Lng: -73.9229}},
	{"St. George", "Staten Island", geo.Point{Lat: 40.6437, Lng: -74.0736}},
}

// TestGeohashes are the buckets the demo data was built around
var TestGeohashes = []string{"dr5ru", "dr72h", "dr72j", "dr5rv"}

var categories = []string{"food", "music", "art", "nature", "nightlife", "sports", "transit", "events"}

// ageBand spreads post ages so every sampling window has data
type ageBand struct {
	weight int
	max    time.Duration
}

var ageBands = []ageBand{
	{50, 24 * time.Hour},
	{20, 7 * 24 * time.Hour},
	{15, 30 * 24 * time.Hour},
	{10, 365 * 24 * time.Hour},
	{5, 2 * 365 * 24 * time.Hour},
}

// Store is where seeded posts go
type Store interface {
	CreatePost(ctx context.Context, post *models.Post) error
}

// Seeder generates mock posts
type Seeder struct {
	store   Store
	faker   *gofakeit.Faker
	now     func() time.Time
	authors []author
}

type author struct {
	id       string
	username string
	image    string
}

// NewSeeder creates a seeder. The same seed produces the same posts.
func NewSeeder(store Store, seed uint64) *Seeder {
	s := &Seeder{
		store: store,
		faker: gofakeit.New(seed),
		now:   time.Now,
	}
	for range 25 {
		username := s.faker.Username()
		s.authors = append(s.authors, author{
			id:       s.faker.UUID(),
			username: username,
			image:    "https://i.pravatar.cc/150?u=" + username,
		})
	}
	return s
}

// SeedNeighborhoods writes perArea posts scattered around each neighborhood
func (s *Seeder) SeedNeighborhoods(ctx context.Context, areas []Neighborhood, perArea int) (int, error) {
	created := 0
	for _, area := range areas {
		for range perArea {
			// ~0.01 degrees is about one kilometer
			p := s.jitter(area.Center, 0.01)
			post := s.Post(p, fmt.Sprintf("%s, %s", area.Name, area.Borough))
			if err := s.store.CreatePost(ctx, post); err != nil {
				return created, fmt.Errorf("seed %s: %w", area.Name, err)
			}
			created++
		}
		logger.Log.Info("Seeded neighborhood",
			zap.String("neighborhood", area.Name),
			logger.WithBucket(geo.BucketFor(area.Center)),
			zap.Int("posts", perArea),
		)
	}
	return created, nil
}

// SeedGeohashes writes perBucket posts inside each of the given buckets
func (s *Seeder) SeedGeohashes(ctx context.Context, buckets []string, perBucket int) (int, error) {
	created := 0
	for _, bucket := range buckets {
		center := geo.Decode(bucket)
		for range perBucket {
			// Stay well inside the ~4.9km x 4.9km cell.
			post := s.Post(s.jitter(center, 0.001), bucket)
			if post.PartitionKey != bucket {
				return created, fmt.Errorf("seed %s: generated point fell into %s", bucket, post.PartitionKey)
			}
			if err := s.store.CreatePost(ctx, post); err != nil {
				return created, fmt.Errorf("seed %s: %w", bucket, err)
			}
			created++
		}
		logger.Log.Info("Seeded bucket", logger.WithBucket(bucket), zap.Int("posts", perBucket))
	}
	return created, nil
}

// Post builds one mock post at p
func (s *Seeder) Post(p geo.Point, place string) *models.Post {
	a := s.authors[s.faker.IntRange(0, len(s.authors)-1)]
	created := s.now().Add(-s.age())

	post := &models.Post{
		Coordinates:        models.Coordinates{Lat: p.Lat, Lng: p.Lng},
		Content:            fmt.Sprintf("%s (%s)", s.faker.HipsterSentence(), place),
		AuthorID:           a.id,
		AuthorUsername:     a.username,
		AuthorProfileImage: a.image,
		SubjectCategory:    categories[s.faker.IntRange(0, len(categories)-1)],
		EngagementLevel:    models.EngagementLevel(s.faker.IntRange(int(models.EngagementLow), int(models.EngagementHigh))),
		LikeCount:          s.faker.IntRange(0, 500),
		CommentCount:       s.faker.IntRange(0, 60),
		SortKey:            created.UnixMilli(),
		CreatedAt:          created.UTC(),
	}
	post.Normalize(created)
	return post
}

func (s *Seeder) age() time.Duration {
	total := 0
	for _, b := range ageBands {
		total += b.weight
	}
	roll := s.faker.IntRange(0, total-1)
	lower := time.Duration(0)
	for _, b := range ageBands {
		if roll < b.weight {
			return lower + time.Duration(s.faker.Float64Range(0, float64(b.max-lower)))
		}
		roll -= b.weight
		lower = b.max
	}
	return 0
}

func (s *Seeder) jitter(center geo.Point, spread float64) geo.Point {
	return geo.Point{
		Lat: center.Lat + s.faker.Float64Range(-spread/2, spread/2),
		Lng: center.Lng + s.faker.Float64Range(-spread/2, spread/2),
	}
}
