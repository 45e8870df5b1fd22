package location

import (
	"context"
	"strconv"
	"time"

	"gocloud.dev/pubsub"
)

// Publisher forwards samples onto the location topic. Messages carry the
// CBOR encoded sample and the sample time as unix seconds in metadata.
type Publisher struct {
	topic *pubsub.Topic
}

func NewPublisher(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, s Sample) error {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	body, err := Encode(FormatCBOR, s)
	if err != nil {
		return err
	}
	return p.topic.Send(ctx, &pubsub.Message{
		Body: body,
		Metadata: map[string]string{
			"format": FormatCBOR,
			"time":   strconv.FormatInt(s.Time.Unix(), 10),
		},
	})
}
