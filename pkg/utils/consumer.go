package utils

import (
	"context"

	"github.com/nsqio/go-nsq"
)

// TouchSec is how often long-running handlers should touch their
// message to keep NSQ from requeueing it.
const TouchSec = 30

// StartConsumer subscribes a handler to topic/channel through
// nsqlookupd and blocks until the context is done, at which point it
// gracefully stops the consumer.
func StartConsumer(ctx context.Context, lookupd, topic, channel string, maxInFlight int, handler nsq.Handler) error {
	config := nsq.NewConfig()
	config.MaxInFlight = maxInFlight
	consumer, err := nsq.NewConsumer(topic, channel, config)
	if err != nil {
		return err
	}

	consumer.AddHandler(handler)

	if err := consumer.ConnectToNSQLookupd(lookupd); err != nil {
		return err
	}

	<-ctx.Done()

	consumer.Stop()
	return nil
}
