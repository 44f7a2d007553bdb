package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"github.com/zhulik/pips"
	"github.com/zhulik/pips/apply"
	"resty.dev/v3"

	"postsync/internal/core"
	"postsync/internal/nats"
	"postsync/pkg/retry"
)

const (
	postContentType = "application/vnd.postsync.post.v0+json"

	pushAttempts = 3
	pushBackoff  = 2 * time.Second
)

var (
	deliveriesPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postsync_deliveries_pushed_total",
		Help: "The total number of outbound post pushes.",
	}, []string{"status"})
)

// Worker drains the delivery stream and pushes each post to the
// delivery-enabled subscriptions matching its type. Retry and redelivery
// live here, not in the ingestion path.
type Worker struct {
	Logger        *slog.Logger
	Config        *core.Config
	NATS          *nats.NATS
	Posts         core.PostRepository
	Subscriptions core.SubscriptionRepository

	client *resty.Client
	kv     jetstream.KeyValue
}

func (w *Worker) Init(_ context.Context) error {
	w.Logger = w.Logger.With("component", "delivery.Worker")
	w.client = resty.New().SetTimeout(10 * time.Second)
	w.kv = w.NATS.KV
	return nil
}

func (w *Worker) Shutdown(_ context.Context) error {
	return w.client.Close()
}

func (w *Worker) Run(ctx context.Context) error {
	return w.NATS.ConsumeToPipeline(ctx, nats.StreamName, nats.DeliveriesConsumer,
		pips.New[jetstream.Msg, any]().
			Then(apply.Map(func(ctx context.Context, msg jetstream.Msg) (any, error) {
				var task Task
				if err := json.Unmarshal(msg.Data(), &task); err != nil {
					return nil, err
				}

				if err := w.deliver(ctx, task); err != nil {
					deliveriesPushed.WithLabelValues("error").Inc()
					return nil, err
				}
				return nil, msg.Ack()
			})))
}

func (w *Worker) deliver(ctx context.Context, task Task) error {
	// A completion marker means an earlier attempt pushed everything but its
	// ack was lost; the redelivery is dropped instead of re-pushed.
	if _, err := w.kv.Get(ctx, task.Key()); err == nil {
		w.Logger.Debug("delivery already completed", "id", task.Key())
		return nil
	} else if !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}

	post, err := w.Posts.FindVersion(ctx, task.UserID, task.PublicID, task.Version)
	if err != nil {
		return err
	}

	subs, err := w.Subscriptions.DeliverableFor(ctx, post.UserID, post.Type)
	if err != nil {
		return err
	}

	body, err := json.Marshal(wirePost(post))
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if !post.Public && !lo.Contains(post.PermittedEntities, sub.SubscriberEntity) {
			continue
		}

		if err := w.push(ctx, sub, body); err != nil {
			return err
		}
		deliveriesPushed.WithLabelValues("ok").Inc()
	}

	if _, err := w.kv.Put(ctx, task.Key(), []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))); err != nil {
		return err
	}

	w.Logger.Info("post delivered",
		"public_id", post.PublicID, "version", post.Version, "subscriptions", len(subs))

	return nil
}

func (w *Worker) push(ctx context.Context, sub core.Subscription, body []byte) error {
	endpoint := fmt.Sprintf("%s/notifications", sub.SubscriberEntity)

	return retry.Do(ctx, pushAttempts, pushBackoff, func() error {
		resp, err := w.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", postContentType).
			SetBody(body).
			Post(endpoint)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("push to %s: %s", endpoint, resp.Status())
		}
		return nil
	})
}

// wireFormat is the serialized shape a remote party receives.
type wireFormat struct {
	ID          string          `json:"id"`
	Entity      string          `json:"entity"`
	Type        string          `json:"type"`
	PublishedAt int64           `json:"published_at"`
	Content     json.RawMessage `json:"content,omitempty"`
	Version     wireVersion     `json:"version"`
}

type wireVersion struct {
	ID          string `json:"id"`
	PublishedAt int64  `json:"published_at"`
	ReceivedAt  int64  `json:"received_at"`
}

func wirePost(post *core.Post) wireFormat {
	return wireFormat{
		ID:          post.PublicID,
		Entity:      post.Entity,
		Type:        post.Type,
		PublishedAt: post.PublishedAt,
		Content:     post.Content,
		Version: wireVersion{
			ID:          post.Version,
			PublishedAt: post.VersionPublishedAt,
			ReceivedAt:  post.VersionReceivedAt,
		},
	}
}
