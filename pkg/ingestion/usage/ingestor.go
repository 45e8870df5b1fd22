package usage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"github.com/apex/log"
	"gocloud.dev/pubsub"
)

type UsageDataIngestor struct {
	dataSub *pubsub.Subscription
	tsStore historical.TimeSeriesStore
	logger  *log.Entry
}

func NewIngestor(dataSub *pubsub.Subscription, tsStore historical.TimeSeriesStore) *UsageDataIngestor {
	logger := log.WithField("module", "usage-ingestor")
	return &UsageDataIngestor{
		dataSub: dataSub,
		tsStore: tsStore,
		logger:  logger,
	}
}

// Start stores every energy reading published on the usage topic until the
// subscription is shut down.
func (ui *UsageDataIngestor) Start() {
	for {
		ctx := context.Background()
		msg, err := ui.dataSub.Receive(ctx)
		if err != nil {
			ui.logger.Infof("Receiving message: %v", err)
			break
		}

		if err := ui.handle(ctx, msg.Metadata, msg.Body); err != nil {
			ui.logger.Errorf("err insert usage point :%v", err)
		}

		// Messages must always be acknowledged with Ack.
		msg.Ack()
	}
}

func (ui *UsageDataIngestor) handle(ctx context.Context, metadata map[string]string, body []byte) error {
	id := metadata["id"]
	var reportedTime time.Time
	timeInt, err := strconv.ParseInt(metadata["time"], 10, 64)
	if err != nil {
		reportedTime = time.Now()
	} else {
		reportedTime = time.Unix(0, timeInt)
	}

	ui.logger.Infof("Got message: %s - %v - %q", id, reportedTime, body)

	var datapoint map[string]interface{}
	if err := json.Unmarshal(body, &datapoint); err != nil {
		// Drop msg
		ui.logger.Warnf("Invalid msg format :%v", err)
		return nil
	}

	return ui.tsStore.InsertDataPoint(ctx, historical.TypeEnergy, id, reportedTime, datapoint)
}
