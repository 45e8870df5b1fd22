package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"com.aviebrantz.smart-energy/pkg/geo"
	"gocloud.dev/pubsub"

	_ "gocloud.dev/pubsub/mempubsub"
)

func TestTrackerWithoutFix(t *testing.T) {
	tr := NewTracker()
	if err := tr.RequestPermission(context.Background()); err != nil {
		t.Fatalf("RequestPermission() = %v", err)
	}
	if _, err := tr.CurrentPosition(context.Background()); !errors.Is(err, ErrNoFix) {
		t.Fatalf("CurrentPosition() error = %v, want ErrNoFix", err)
	}
}

func TestTrackerDenied(t *testing.T) {
	tr := NewTracker()
	tr.Update(Sample{Coordinate: geo.Coordinate{Latitude: 1, Longitude: 2}})
	tr.SetPermission(false)

	if err := tr.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("RequestPermission() = %v", err)
	}
	if _, err := tr.CurrentPosition(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("CurrentPosition() error = %v", err)
	}
}

func TestTrackerLatestWins(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Update(Sample{Coordinate: geo.Coordinate{Latitude: 1}, Time: now})
	tr.Update(Sample{Coordinate: geo.Coordinate{Latitude: 2}, Time: now.Add(-time.Minute)})
	tr.Update(Sample{Coordinate: geo.Coordinate{Latitude: 3}, Time: now.Add(time.Second)})

	pos, err := tr.CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition() failed: %v", err)
	}
	if pos.Latitude != 3 {
		t.Fatalf("latitude = %v, want 3", pos.Latitude)
	}
	if tr.Permission() != PermissionGranted {
		t.Fatalf("permission = %q", tr.Permission())
	}
}

func TestCodecFormats(t *testing.T) {
	in := Sample{Coordinate: geo.Coordinate{Latitude: 17.385044, Longitude: 78.486671}, Time: time.Unix(1700000000, 0)}
	for _, format := range []string{FormatJSON, FormatCBOR} {
		data, err := Encode(format, in)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", format, err)
		}
		out, err := Decode(format, data)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", format, err)
		}
		if out.Coordinate != in.Coordinate || !out.Time.Equal(in.Time) {
			t.Fatalf("%s: got %+v, want %+v", format, out, in)
		}
	}
}

func TestDecodeRejectsIncompleteSample(t *testing.T) {
	if _, err := Decode(FormatJSON, []byte(`{"latitude":1}`)); err == nil {
		t.Fatalf("expected an error for a sample without longitude")
	}
	if _, err := Decode(FormatJSON, []byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed json")
	}
	if _, err := Decode("xml", []byte(`{}`)); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}
}

func TestFormatFromContentType(t *testing.T) {
	if FormatFromContentType("application/cbor") != FormatCBOR {
		t.Fatalf("cbor content type not detected")
	}
	if FormatFromContentType("application/json; charset=utf-8") != FormatJSON {
		t.Fatalf("json content type not detected")
	}
}

func TestPublisherSendsCBOR(t *testing.T) {
	ctx := context.Background()
	topic, err := pubsub.OpenTopic(ctx, "mem://location-test")
	if err != nil {
		t.Fatalf("OpenTopic() failed: %v", err)
	}
	defer topic.Shutdown(ctx)
	sub, err := pubsub.OpenSubscription(ctx, "mem://location-test")
	if err != nil {
		t.Fatalf("OpenSubscription() failed: %v", err)
	}
	defer sub.Shutdown(ctx)

	in := Sample{Coordinate: geo.Coordinate{Latitude: 5, Longitude: 6}}
	if err := NewPublisher(topic).Publish(ctx, in); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() failed: %v", err)
	}
	msg.Ack()
	if msg.Metadata["format"] != FormatCBOR || msg.Metadata["time"] == "" {
		t.Fatalf("metadata = %v", msg.Metadata)
	}
	out, err := Decode(FormatCBOR, msg.Body)
	if err != nil || out.Coordinate != in.Coordinate {
		t.Fatalf("Decode() = %+v, %v", out, err)
	}
}
