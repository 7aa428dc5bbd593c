// Package polyline implements the Google encoded polyline algorithm format:
// coordinate deltas, zig-zag signed, fixed-point 1e5, emitted as 5-bit groups
// offset by 63.
package polyline

import (
	"github.com/sparkpark/navigator/internal/lib/geo"
)

const scale = 1e5

// Decode converts an encoded polyline string to a coordinate sequence.
// Iteration is bounded by the input length and a truncated trailing group is
// treated as end-of-stream rather than producing garbage coordinates.
func Decode(encoded string) []geo.Point {
	var points []geo.Point
	var lat, lng int64

	i := 0
	for i < len(encoded) {
		dlat, next, ok := decodeValue(encoded, i)
		if !ok {
			break
		}
		dlng, after, ok := decodeValue(encoded, next)
		if !ok {
			break
		}
		i = after

		lat += dlat
		lng += dlng
		points = append(points, geo.Point{
			Latitude:  float64(lat) / scale,
			Longitude: float64(lng) / scale,
		})
	}

	return points
}

// Encode converts a coordinate sequence to an encoded polyline string.
func Encode(points []geo.Point) string {
	var buf []byte
	var prevLat, prevLng int64

	for _, p := range points {
		lat := round(p.Latitude * scale)
		lng := round(p.Longitude * scale)
		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)
		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

// decodeValue reads one zig-zag varint starting at offset i. ok is false when
// the stream ends mid-group.
func decodeValue(encoded string, i int) (value int64, next int, ok bool) {
	var result int64
	var shift uint

	for {
		if i >= len(encoded) {
			return 0, i, false
		}
		b := int64(encoded[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), i, true
	}
	return result >> 1, i, true
}

func encodeValue(buf []byte, v int64) []byte {
	// Zig-zag: sign bit moves to the low bit.
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte(0x20|(u&0x1f))+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

func round(f float64) int64 {
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}
