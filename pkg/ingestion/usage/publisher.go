package usage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"gocloud.dev/pubsub"
)

// Publisher sends energy readings to the usage topic. The reading time travels
// in metadata as unix nanoseconds.
type Publisher struct {
	topic *pubsub.Topic
}

func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

func (p *Publisher) Record(ctx context.Context, id string, at time.Time, watts float64) error {
	body, err := json.Marshal(map[string]interface{}{historical.FieldEnergyUse: watts})
	if err != nil {
		return err
	}
	return p.topic.Send(ctx, &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"id":   id,
			"time": strconv.FormatInt(at.UnixNano(), 10),
		},
	})
}
