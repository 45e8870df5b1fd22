package location

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"com.aviebrantz.smart-energy/pkg/geo"
	"github.com/fxamacker/cbor/v2"
)

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// wireSample is the flat shape phones send: {"latitude":..,"longitude":..,"time":unix}.
type wireSample struct {
	Latitude  *float64 `json:"latitude" cbor:"latitude"`
	Longitude *float64 `json:"longitude" cbor:"longitude"`
	Time      int64    `json:"time,omitempty" cbor:"time,omitempty"`
}

// FormatFromContentType maps an HTTP or CoAP content type to a sample format.
func FormatFromContentType(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "cbor") {
		return FormatCBOR
	}
	return FormatJSON
}

func Decode(format string, data []byte) (Sample, error) {
	var w wireSample
	var err error
	switch format {
	case FormatCBOR:
		err = cbor.Unmarshal(data, &w)
	case FormatJSON:
		err = json.Unmarshal(data, &w)
	default:
		return Sample{}, fmt.Errorf("unknown sample format %q", format)
	}
	if err != nil {
		return Sample{}, fmt.Errorf("decode %s sample: %w", format, err)
	}
	if w.Latitude == nil || w.Longitude == nil {
		return Sample{}, fmt.Errorf("decode %s sample: latitude and longitude are required", format)
	}

	s := Sample{Coordinate: geo.Coordinate{Latitude: *w.Latitude, Longitude: *w.Longitude}}
	if w.Time > 0 {
		s.Time = time.Unix(w.Time, 0)
	}
	return s, nil
}

func Encode(format string, s Sample) ([]byte, error) {
	w := wireSample{
		Latitude:  &s.Coordinate.Latitude,
		Longitude: &s.Coordinate.Longitude,
	}
	if !s.Time.IsZero() {
		w.Time = s.Time.Unix()
	}
	switch format {
	case FormatCBOR:
		return cbor.Marshal(w)
	case FormatJSON:
		return json.Marshal(w)
	default:
		return nil, fmt.Errorf("unknown sample format %q", format)
	}
}
