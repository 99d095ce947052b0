package geo

import (
	"math"
	"testing"

	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var centralPark = Point{Lat: 40.7831, Lng: -73.9712}

func TestEncodeKnownValue(t *testing.T) {
	assert.Equal(t, "u4pru", Encode(57.64911, 10.40744, 5))
	assert.Equal(t, "u4pruydqqvj", Encode(57.64911, 10.40744, 11))
}

func TestEncodeIsNestedByPrecision(t *testing.T) {
	points := []Point{centralPark, {Lat: -33.8688, Lng: 151.2093}, {Lat: 0, Lng: 0}, {Lat: 89.9, Lng: -179.9}}
	for _, p := range points {
		long := Encode(p.Lat, p.Lng, 7)
		for precision := uint(1); precision < 7; precision++ {
			assert.Equal(t, long[:precision], Encode(p.Lat, p.Lng, precision))
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	assert.Equal(t, BucketFor(centralPark), BucketFor(centralPark))
	assert.Len(t, BucketFor(centralPark), int(BucketPrecision))
}

func TestDecodeStaysInsideCell(t *testing.T) {
	code := BucketFor(centralPark)
	center := Decode(code)

	assert.Equal(t, code, BucketFor(center))
	assert.InDelta(t, centralPark.Lat, center.Lat, cellLatDegrees)
	assert.InDelta(t, centralPark.Lng, center.Lng, cellLngDegrees)
}

func TestHaversineDistance(t *testing.T) {
	assert.Zero(t, HaversineDistance(centralPark, centralPark))

	oneDegree := HaversineDistance(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0})
	assert.InDelta(t, 111195, oneDegree, 10)

	nyc := Point{Lat: 40.7128, Lng: -74.0060}
	la := Point{Lat: 34.0522, Lng: -118.2437}
	d := HaversineDistance(nyc, la)
	assert.InDelta(t, 3936e3, d, 3936e3*0.01)
	assert.Equal(t, d, HaversineDistance(la, nyc))
}

func TestSphereValidate(t *testing.T) {
	tests := []struct {
		name   string
		sphere Sphere
		valid  bool
	}{
		{"central park", Sphere{Center: centralPark, Radius: 5000}, true},
		{"zero radius", Sphere{Center: centralPark, Radius: 0}, false},
		{"negative radius", Sphere{Center: centralPark, Radius: -10}, false},
		{"nan radius", Sphere{Center: centralPark, Radius: math.NaN()}, false},
		{"largest radius", Sphere{Center: centralPark, Radius: MaxRadiusMeters}, true},
		{"radius too large", Sphere{Center: centralPark, Radius: MaxRadiusMeters + 1}, false},
		{"infinite radius", Sphere{Center: centralPark, Radius: math.Inf(1)}, false},
		{"latitude too high", Sphere{Center: Point{Lat: 91, Lng: 0}, Radius: 10}, false},
		{"longitude too low", Sphere{Center: Point{Lat: 0, Lng: -181}, Radius: 10}, false},
		{"pole", Sphere{Center: Point{Lat: 90, Lng: 0}, Radius: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sphere.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidSphere)
		})
	}
}

func TestCoveringBucketsRejectsInvalidSphere(t *testing.T) {
	buckets, err := CoveringBuckets(Sphere{Center: centralPark, Radius: 0})
	assert.ErrorIs(t, err, ErrInvalidSphere)
	assert.Nil(t, buckets)
}

func TestCoveringBucketsCentersWithinRadius(t *testing.T) {
	sphere := Sphere{Center: centralPark, Radius: 5000}
	buckets, err := CoveringBuckets(sphere)
	require.NoError(t, err)
	require.NotEmpty(t, buckets)

	assert.Contains(t, buckets, BucketFor(centralPark))
	assert.IsIncreasing(t, buckets)
	for _, code := range buckets {
		if code == BucketFor(centralPark) {
			continue
		}
		assert.LessOrEqual(t, HaversineDistance(sphere.Center, Decode(code)), sphere.Radius, code)
	}
}

func TestCoveringBucketsIncludesEveryNearbyCell(t *testing.T) {
	sphere := Sphere{Center: centralPark, Radius: 8000}
	buckets, err := CoveringBuckets(sphere)
	require.NoError(t, err)

	b := boundingBox(sphere)
	step := cellLatDegrees / 4
	for lat := b.minLat; lat <= b.maxLat; lat += step {
		for lng := b.minLng; lng <= b.maxLng; lng += step {
			code := Encode(lat, lng, BucketPrecision)
			if HaversineDistance(sphere.Center, Decode(code)) <= sphere.Radius {
				assert.Contains(t, buckets, code)
			}
		}
	}
}

func TestCoveringBucketsRejectsOversizedSphere(t *testing.T) {
	buckets, err := CoveringBuckets(Sphere{Center: Point{Lat: 40.78, Lng: -73.97}, Radius: 5e6})
	assert.ErrorIs(t, err, ErrInvalidSphere)
	assert.Nil(t, buckets)
}

func TestCoveringBucketsTinySphereReturnsCenterBucket(t *testing.T) {
	buckets, err := CoveringBuckets(Sphere{Center: centralPark, Radius: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{BucketFor(centralPark)}, buckets)
}

func TestCoveringBucketsLargeSphereUsesGridWalk(t *testing.T) {
	sphere := Sphere{Center: Point{Lat: 39.8, Lng: -98.5}, Radius: MaxRadiusMeters}
	b := boundingBox(sphere)
	sw := geohash.EncodeIntWithPrecision(b.minLat, b.minLng, bucketBits)
	ne := geohash.EncodeIntWithPrecision(b.maxLat, b.maxLng, bucketBits)
	require.Greater(t, ne-sw, MaxRangeSpan)

	buckets, err := CoveringBuckets(sphere)
	require.NoError(t, err)
	assert.Greater(t, len(buckets), 100)
	assert.Less(t, len(buckets), 5000)

	for _, code := range buckets {
		assert.LessOrEqual(t, HaversineDistance(sphere.Center, Decode(code)), sphere.Radius)
	}
}

func TestGridWalkAgreesWithRangeEnumeration(t *testing.T) {
	sphere := Sphere{Center: centralPark, Radius: 6000}
	buckets, err := CoveringBuckets(sphere)
	require.NoError(t, err)

	for _, code := range gridWalk(boundingBox(sphere)) {
		if HaversineDistance(sphere.Center, Decode(code)) <= sphere.Radius {
			assert.Contains(t, buckets, code)
		}
	}
}

func TestPointValidate(t *testing.T) {
	assert.NoError(t, centralPark.Validate())
	assert.ErrorIs(t, Point{Lat: -90.5}.Validate(), ErrInvalidPoint)
	assert.ErrorIs(t, Point{Lng: math.NaN()}.Validate(), ErrInvalidPoint)

	err := Sphere{Center: Point{Lat: 95}, Radius: 10}.Validate()
	assert.ErrorIs(t, err, ErrInvalidSphere)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}
