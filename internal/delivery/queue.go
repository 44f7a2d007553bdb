// Package delivery carries finished posts to subscribed remote parties: the
// Queue schedules them on the broker at ingestion time, the Worker drains
// the stream and performs the pushes.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	libnats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"postsync/internal/core"
	"postsync/internal/nats"
)

const deliveriesSubject = "postsync.deliveries"

var (
	deliveriesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postsync_deliveries_enqueued_total",
		Help: "The total number of posts scheduled for outbound delivery.",
	})
)

// Task identifies the post version to deliver. The worker re-reads the row
// by natural key, so the payload stays small.
type Task struct {
	UserID   int64  `json:"user_id"`
	PublicID string `json:"public_id"`
	Version  string `json:"version"`
	Type     string `json:"type"`
	Entity   string `json:"entity"`
}

// Key is the task's identity: broker message id on publish, completion
// marker key on the worker side.
func (t Task) Key() string {
	return fmt.Sprintf("%d-%s-%s", t.UserID, t.PublicID, t.Version)
}

// Queue is the NATS JetStream backed delivery queue. Enqueue publishes and
// returns; it never waits on delivery.
type Queue struct {
	Logger *slog.Logger
	NATS   *nats.NATS
}

func (q *Queue) Init(_ context.Context) error {
	q.Logger = q.Logger.With("component", "delivery.Queue")
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, post *core.Post) error {
	task := Task{
		UserID:   post.UserID,
		PublicID: post.PublicID,
		Version:  post.Version,
		Type:     post.Type,
		Entity:   post.Entity,
	}

	bytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	// The broker drops duplicate ids inside its dedup window; the caller
	// still enqueues at most once per creation.
	msgID := task.Key()

	msg := &libnats.Msg{
		Subject: deliveriesSubject,
		Data:    bytes,
		Header: libnats.Header{
			libnats.MsgIdHdr: []string{msgID},
		},
	}

	if _, err = q.NATS.JS.PublishMsg(ctx, msg); err != nil {
		return err
	}

	deliveriesEnqueued.Inc()
	q.Logger.Debug("delivery enqueued", "id", msgID)

	return nil
}
