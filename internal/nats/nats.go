package nats

import (
	"context"
	"log/slog"
	"time"

	"postsync/internal/core"

	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zhulik/pips"
)

const (
	appName = "postsync"

	// StreamName holds the delivery queue; DeliveriesConsumer is the durable
	// consumer the deliverer command reads from.
	StreamName         = appName
	DeliveriesConsumer = "deliverer"
)

type NATS struct {
	Logger *slog.Logger
	Config *core.Config

	JS jetstream.JetStream
	KV jetstream.KeyValue
}

func (n *NATS) Init(ctx context.Context) error {
	n.Logger = n.Logger.With("component", "nats.NATS")

	nc, err := libnats.Connect(n.Config.NATSURL)
	if err != nil {
		return err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return err
	}

	n.JS = js

	if n.Config.NATSInit {
		if err := n.initNATS(ctx); err != nil {
			return err
		}
	}

	kv, err := js.KeyValue(ctx, appName)
	if err != nil {
		return err
	}
	n.KV = kv

	return nil
}

func (n *NATS) HealthCheck(context.Context) error {
	_, err := n.JS.Conn().RTT()
	return err
}

func (n *NATS) Shutdown(context.Context) error {
	return n.JS.Conn().Drain()
}

// ConsumeToPipeline feeds the durable consumer's messages through p until
// ctx is cancelled. Pipeline errors are logged, not fatal: a failed message
// stays unacked and redelivers.
func (n *NATS) ConsumeToPipeline(ctx context.Context, stream, name string, p *pips.Pipeline[jetstream.Msg, any]) error {
	cons, err := n.JS.Consumer(ctx, stream, name)
	if err != nil {
		return err
	}

	it, err := cons.Messages()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		it.Stop()
	}()

	ch := make(chan pips.D[jetstream.Msg])
	go func() {
		defer close(ch)
		for {
			msg, err := it.Next()
			if err != nil {
				return
			}
			ch <- pips.NewD(msg)
		}
	}()

	for d := range p.Run(ctx, ch) {
		if _, err := d.Unpack(); err != nil {
			n.Logger.Error("pipeline error", "error", err)
		}
	}

	return nil
}

func (n *NATS) initNATS(ctx context.Context) error {
	n.Logger.Info("Initializing NATS")
	_, err := n.JS.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{appName + ".*"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		return err
	}
	n.Logger.Info("Stream created or updated", "name", StreamName)

	_, err = n.JS.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       DeliveriesConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: appName + ".deliveries",
	})
	if err != nil {
		return err
	}
	n.Logger.Info("Consumer created or updated", "name", DeliveriesConsumer)

	_, err = n.JS.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: appName,
	})
	if err != nil {
		return err
	}
	n.Logger.Info("KeyValue created or updated", "name", appName)

	return nil
}
