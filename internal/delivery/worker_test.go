package delivery

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"resty.dev/v3"

	"postsync/internal/core"
)

type fakePosts struct {
	post *core.Post
}

func (f *fakePosts) Create(context.Context, *core.Post) error { return nil }

func (f *fakePosts) Get(context.Context, int64) (*core.Post, error) {
	return nil, core.ErrNotFound
}

func (f *fakePosts) FindVersion(_ context.Context, userID int64, publicID, version string) (*core.Post, error) {
	if f.post != nil && f.post.UserID == userID && f.post.PublicID == publicID && f.post.Version == version {
		return f.post, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakePosts) FindLatest(context.Context, int64, string) (*core.Post, error) {
	return nil, core.ErrNotFound
}

func (f *fakePosts) List(context.Context, int64, core.FeedQuery) ([]core.Post, error) {
	return nil, nil
}

type fakeSubscriptions struct {
	subs []core.Subscription
}

func (f *fakeSubscriptions) FindMatching(context.Context, int64, string, string) (*core.Subscription, error) {
	return nil, core.ErrNotFound
}

func (f *fakeSubscriptions) Create(context.Context, *core.Subscription) error { return nil }

func (f *fakeSubscriptions) Update(context.Context, *core.Subscription) error { return nil }

func (f *fakeSubscriptions) DeliverableFor(context.Context, int64, string) ([]core.Subscription, error) {
	return f.subs, nil
}

// fakeKV covers the two KeyValue calls the worker makes; everything else
// panics through the embedded nil interface.
type fakeKV struct {
	jetstream.KeyValue
	data map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if _, ok := f.data[key]; !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return nil, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func deliveryTestWorker(posts *fakePosts, subs *fakeSubscriptions, kv *fakeKV) *Worker {
	return &Worker{
		Logger:        slog.New(slog.DiscardHandler),
		Posts:         posts,
		Subscriptions: subs,
		client:        resty.New().SetTimeout(time.Second),
		kv:            kv,
	}
}

func testPost() *core.Post {
	return &core.Post{
		UserID:   1,
		PublicID: "p1",
		Version:  "v1",
		Type:     "https://tent.io/types/status/v0#",
		Entity:   "https://alice.example.org",
		Public:   true,
	}
}

func TestWorker_Deliver(t *testing.T) {
	t.Parallel()

	task := Task{UserID: 1, PublicID: "p1", Version: "v1"}

	t.Run("pushes to deliverable subscriptions and marks completion", func(t *testing.T) {
		t.Parallel()

		var pushes atomic.Int64
		var gotPath, gotContentType atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pushes.Add(1)
			gotPath.Store(r.URL.Path)
			gotContentType.Store(r.Header.Get("Content-Type"))
		}))
		defer srv.Close()

		kv := newFakeKV()
		w := deliveryTestWorker(
			&fakePosts{post: testPost()},
			&fakeSubscriptions{subs: []core.Subscription{{SubscriberEntity: srv.URL, Deliver: true}}},
			kv,
		)

		require.NoError(t, w.deliver(t.Context(), task))
		require.Equal(t, int64(1), pushes.Load())
		require.Equal(t, "/notifications", gotPath.Load())
		require.Equal(t, postContentType, gotContentType.Load())
		require.Contains(t, kv.data, task.Key())
	})

	t.Run("completed tasks are not re-pushed on redelivery", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected push")
		}))
		defer srv.Close()

		kv := newFakeKV()
		kv.data[task.Key()] = []byte("done")

		w := deliveryTestWorker(
			&fakePosts{post: testPost()},
			&fakeSubscriptions{subs: []core.Subscription{{SubscriberEntity: srv.URL, Deliver: true}}},
			kv,
		)

		require.NoError(t, w.deliver(t.Context(), task))
	})

	t.Run("private posts skip non-permitted subscribers", func(t *testing.T) {
		t.Parallel()

		var pushes atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pushes.Add(1)
		}))
		defer srv.Close()

		post := testPost()
		post.Public = false
		post.PermittedEntities = []string{"https://carol.example.org"}

		kv := newFakeKV()
		w := deliveryTestWorker(
			&fakePosts{post: post},
			&fakeSubscriptions{subs: []core.Subscription{{SubscriberEntity: srv.URL, Deliver: true}}},
			kv,
		)

		require.NoError(t, w.deliver(t.Context(), task))
		require.Zero(t, pushes.Load())
		require.Contains(t, kv.data, task.Key())
	})

	t.Run("unknown post version fails the attempt", func(t *testing.T) {
		t.Parallel()

		w := deliveryTestWorker(&fakePosts{}, &fakeSubscriptions{}, newFakeKV())

		require.ErrorIs(t, w.deliver(t.Context(), task), core.ErrNotFound)
	})
}
