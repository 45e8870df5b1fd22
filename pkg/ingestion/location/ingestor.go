package location

import (
	"context"
	"strconv"
	"time"

	"com.aviebrantz.smart-energy/pkg/geo"
	loc "com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/presence"
	"github.com/apex/log"
	"gocloud.dev/pubsub"
)

// Evaluator is the presence gate as seen by the ingestor.
type Evaluator interface {
	Evaluate(ctx context.Context, current geo.Coordinate) (presence.Reading, error)
}

// LocationDataIngestor consumes location samples, keeps the tracker current
// and, when a gate is set, evaluates every sample against it.
type LocationDataIngestor struct {
	dataSub *pubsub.Subscription
	tracker *loc.Tracker
	gate    Evaluator
	logger  *log.Entry
}

// NewIngestor creates an ingestor. gate may be nil, in which case samples only
// update the tracker.
func NewIngestor(dataSub *pubsub.Subscription, tracker *loc.Tracker, gate Evaluator) *LocationDataIngestor {
	logger := log.WithField("module", "location-ingestor")
	return &LocationDataIngestor{
		dataSub: dataSub,
		tracker: tracker,
		gate:    gate,
		logger:  logger,
	}
}

// Start receives until the subscription is shut down.
func (li *LocationDataIngestor) Start() {
	for {
		ctx := context.Background()
		msg, err := li.dataSub.Receive(ctx)
		if err != nil {
			li.logger.Infof("Receiving message: %v", err)
			break
		}

		li.handle(ctx, msg.Metadata, msg.Body)

		// Messages must always be acknowledged with Ack.
		msg.Ack()
	}
}

func (li *LocationDataIngestor) handle(ctx context.Context, metadata map[string]string, body []byte) {
	format := metadata["format"]
	if format == "" {
		format = loc.FormatCBOR
	}

	sample, err := loc.Decode(format, body)
	if err != nil {
		// Drop msg
		li.logger.Warnf("Invalid msg format :%v", err)
		return
	}
	if sample.Time.IsZero() {
		if timeInt, err := strconv.ParseInt(metadata["time"], 10, 64); err == nil {
			sample.Time = time.Unix(timeInt, 0)
		}
	}

	li.tracker.Update(sample)
	li.logger.Debugf("Got sample: %v - %v", sample.Coordinate, sample.Time)

	if li.gate == nil {
		return
	}
	if _, err := li.gate.Evaluate(ctx, sample.Coordinate); err != nil {
		li.logger.Warnf("presence evaluation failed :%v", err)
	}
}
