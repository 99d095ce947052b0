package geo

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mmcloughlin/geohash"
)

const (
	// BucketPrecision is the geohash length used for post partition keys.
	// A precision 5 cell is roughly 4.9km x 4.9km.
	BucketPrecision uint = 5

	// EarthRadiusMeters is the mean earth radius used by HaversineDistance.
	EarthRadiusMeters = 6371e3

	// MetersPerDegree approximates one degree of latitude.
	MetersPerDegree = 111000.0

	// MaxRangeSpan caps how many codes CoveringBuckets enumerates from the
	// corner-to-corner Morton range before switching to a grid walk.
	MaxRangeSpan uint64 = 1 << 14

	// MaxRadiusMeters is the largest sphere radius accepted. A 100km sphere
	// covers a few thousand buckets.
	MaxRadiusMeters = 100000.0

	bucketBits = BucketPrecision * 5
	minCosLat  = 0.01
)

var (
	cellLatDegrees = 180.0 / float64(uint64(1)<<(bucketBits/2))
	cellLngDegrees = 360.0 / float64(uint64(1)<<(bucketBits-bucketBits/2))
)

// ErrInvalidSphere is returned for a sphere with a radius outside
// (0, MaxRadiusMeters] or a center outside valid coordinates.
var ErrInvalidSphere = errors.New("invalid sphere")

// ErrInvalidPoint is returned for coordinates outside [-90,90]x[-180,180].
var ErrInvalidPoint = errors.New("invalid coordinates")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the point is a real location.
func (p Point) Validate() error {
	switch {
	case math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidPoint, p.Lat)
	case math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidPoint, p.Lng)
	}
	return nil
}

// Sphere is a circular region of interest.
type Sphere struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"` // meters
}

// Validate reports whether the sphere can be covered by buckets.
func (s Sphere) Validate() error {
	if math.IsNaN(s.Radius) || math.IsInf(s.Radius, 0) || s.Radius <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidSphere, s.Radius)
	}
	if s.Radius > MaxRadiusMeters {
		return fmt.Errorf("%w: radius %v exceeds %v meters", ErrInvalidSphere, s.Radius, MaxRadiusMeters)
	}
	if err := s.Center.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSphere, err)
	}
	return nil
}

// Equal compares two spheres exactly.
func (s Sphere) Equal(other Sphere) bool {
	return s.Center == other.Center && s.Radius == other.Radius
}

// Encode returns the geohash of a point at the given precision.
func Encode(lat, lng float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lng, precision)
}

// Decode returns the center of a geohash cell.
func Decode(code string) Point {
	lat, lng := geohash.DecodeCenter(code)
	return Point{Lat: lat, Lng: lng}
}

// BucketFor returns the partition bucket of a point.
func BucketFor(p Point) string {
	return Encode(p.Lat, p.Lng, BucketPrecision)
}

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// CoveringBuckets returns the sorted precision-5 buckets whose centers lie
// within the sphere. The bucket holding the sphere center is always included
// so small spheres never come back empty.
func CoveringBuckets(s Sphere) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := boundingBox(s)
	sw := geohash.EncodeIntWithPrecision(b.minLat, b.minLng, bucketBits)
	ne := geohash.EncodeIntWithPrecision(b.maxLat, b.maxLng, bucketBits)

	var candidates []string
	if ne >= sw && ne-sw <= MaxRangeSpan {
		candidates = make([]string, 0, ne-sw+1)
		for code := sw; code <= ne; code++ {
			candidates = append(candidates, geohash.ConvertIntToString(code, BucketPrecision))
		}
	} else {
		candidates = gridWalk(b)
	}

	seen := make(map[string]struct{}, len(candidates))
	buckets := make([]string, 0, len(candidates))
	for _, code := range candidates {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		if HaversineDistance(s.Center, Decode(code)) <= s.Radius {
			buckets = append(buckets, code)
		}
	}

	center := BucketFor(s.Center)
	if !slices.Contains(buckets, center) {
		buckets = append(buckets, center)
	}

	slices.Sort(buckets)
	return buckets, nil
}

type box struct {
	minLat, maxLat, minLng, maxLng float64
}

// boundingBox widens the longitude span by 1/cos(lat); the haversine filter
// trims the extra cells afterwards. Boxes are clamped at the poles and the
// antimeridian rather than wrapped.
func boundingBox(s Sphere) box {
	latSpan := s.Radius / MetersPerDegree
	cos := math.Cos(toRadians(s.Center.Lat))
	if cos < minCosLat {
		cos = minCosLat
	}
	lngSpan := latSpan / cos

	return box{
		minLat: clamp(s.Center.Lat-latSpan, -90, 90),
		maxLat: clamp(s.Center.Lat+latSpan, -90, 90),
		minLng: clamp(s.Center.Lng-lngSpan, -180, 180),
		maxLng: clamp(s.Center.Lng+lngSpan, -180, 180),
	}
}

func gridWalk(b box) []string {
	var codes []string
	for lat := b.minLat; ; lat += cellLatDegrees {
		if lat > b.maxLat {
			lat = b.maxLat
		}
		for lng := b.minLng; ; lng += cellLngDegrees {
			if lng > b.maxLng {
				lng = b.maxLng
			}
			codes = append(codes, Encode(lat, lng, BucketPrecision))
			if lng >= b.maxLng {
				break
			}
		}
		if lat >= b.maxLat {
			break
		}
	}
	return codes
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
