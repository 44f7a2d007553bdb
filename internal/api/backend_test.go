package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"postsync/internal/core"
	"postsync/pkg/digest"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	user := &core.User{ID: 1, Entity: "https://alice.example.org"}

	t.Run("bare json body", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/posts",
			bytes.NewBufferString(`{"type": "https://tent.io/types/status/v0#"}`))
		r.Header.Set("Content-Type", "application/json")

		req, ok := b.decodeRequest(httptest.NewRecorder(), r, user)

		require.True(t, ok)
		require.Equal(t, "https://tent.io/types/status/v0#", req.Submission.Type)
		require.Empty(t, req.Uploads)
	})

	t.Run("multipart body with uploads", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		part, err := mw.CreateFormField("post")
		require.NoError(t, err)
		_, err = part.Write([]byte(`{"type": "https://tent.io/types/status/v0#"}`))
		require.NoError(t, err)

		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="photos"; filename="cat.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err = mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("jpeg bytes"))
		require.NoError(t, err)

		require.NoError(t, mw.Close())

		r := httptest.NewRequest(http.MethodPost, "/posts", &buf)
		r.Header.Set("Content-Type", mw.FormDataContentType())

		req, ok := b.decodeRequest(httptest.NewRecorder(), r, user)

		require.True(t, ok)
		require.Equal(t, "https://tent.io/types/status/v0#", req.Submission.Type)
		require.Len(t, req.Uploads, 1)
		up := req.Uploads[0]
		require.Equal(t, "cat.jpg", up.Name)
		require.Equal(t, "photos", up.Category)
		require.Equal(t, "image/jpeg", up.ContentType)
		require.Equal(t, []byte("jpeg bytes"), up.Data)
		require.Equal(t, digest.Hex([]byte("jpeg bytes")), up.Digest)
		require.Equal(t, int64(len("jpeg bytes")), up.Size)
	})

	t.Run("invalid submission reports the field", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		_, ok := b.decodeRequest(w, r, user)

		require.False(t, ok)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

type fakeUsers struct {
	user *core.User
}

func (f *fakeUsers) FindByEntity(_ context.Context, entity string) (*core.User, error) {
	if f.user != nil && f.user.Entity == entity {
		return f.user, nil
	}
	return nil, core.ErrNotFound
}

type fakeFeedPosts struct {
	feed    []core.Post
	gotUser int64
	gotQ    core.FeedQuery
}

func (f *fakeFeedPosts) Create(context.Context, *core.Post) error { return nil }

func (f *fakeFeedPosts) Get(context.Context, int64) (*core.Post, error) {
	return nil, core.ErrNotFound
}

func (f *fakeFeedPosts) FindVersion(context.Context, int64, string, string) (*core.Post, error) {
	return nil, core.ErrNotFound
}

func (f *fakeFeedPosts) FindLatest(context.Context, int64, string) (*core.Post, error) {
	return nil, core.ErrNotFound
}

func (f *fakeFeedPosts) List(_ context.Context, userID int64, q core.FeedQuery) ([]core.Post, error) {
	f.gotUser = userID
	f.gotQ = q
	return f.feed, nil
}

func TestListPosts(t *testing.T) {
	t.Parallel()

	user := &core.User{ID: 7, Entity: "https://alice.example.org"}

	t.Run("passes the parsed filters through", func(t *testing.T) {
		t.Parallel()

		posts := &fakeFeedPosts{feed: []core.Post{{ID: 3, PublicID: "p3"}, {ID: 2, PublicID: "p2"}}}
		b := &Backend{Users: &fakeUsers{user: user}, Posts: posts}

		r := httptest.NewRequest(http.MethodGet,
			"/posts?post_types=https://tent.io/types/status/v0%23&since_id=1&before_id=9&limit=2", nil)
		r.Header.Set(entityHeader, user.Entity)
		w := httptest.NewRecorder()

		b.ListPosts(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, int64(7), posts.gotUser)
		require.Equal(t, core.FeedQuery{
			Types:    []string{"https://tent.io/types/status/v0#"},
			SinceID:  1,
			BeforeID: 9,
			Limit:    2,
		}, posts.gotQ)

		var body []core.Post
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body, 2)
		require.Equal(t, "p3", body[0].PublicID)
	})

	t.Run("requires an authenticated entity", func(t *testing.T) {
		t.Parallel()

		b := &Backend{Users: &fakeUsers{user: user}, Posts: &fakeFeedPosts{}}

		r := httptest.NewRequest(http.MethodGet, "/posts", nil)
		w := httptest.NewRecorder()

		b.ListPosts(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestParseFeedQuery(t *testing.T) {
	t.Parallel()

	t.Run("defaults to no filters", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, core.FeedQuery{}, parseFeedQuery(url.Values{}))
	})

	t.Run("splits post_types on commas", func(t *testing.T) {
		t.Parallel()

		q := parseFeedQuery(url.Values{"post_types": {"https://a/v0#,https://b/v0#"}})
		require.Equal(t, []string{"https://a/v0#", "https://b/v0#"}, q.Types)
	})

	t.Run("malformed numbers count as absent", func(t *testing.T) {
		t.Parallel()

		q := parseFeedQuery(url.Values{"since_id": {"soon"}, "limit": {"-"}})
		require.Zero(t, q.SinceID)
		require.Zero(t, q.Limit)
	})
}

func TestCreationMode(t *testing.T) {
	t.Parallel()

	user := &core.User{ID: 1, Entity: "https://alice.example.org"}

	t.Run("own posts use normal mode", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, core.NormalMode(), creationMode(user, &core.Submission{}))
		require.Equal(t, core.NormalMode(), creationMode(user, &core.Submission{Entity: user.Entity}))
	})

	t.Run("another entity is attributed explicitly", func(t *testing.T) {
		t.Parallel()

		mode := creationMode(user, &core.Submission{Entity: "https://bob.example.org"})
		require.Equal(t, core.EntityMode("https://bob.example.org"), mode)
	})
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	t.Run("validation errors are unprocessable", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		writeError(w, core.NewFieldValidationError("/entity", "is required"))

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, "is required", body["error"])
		require.Equal(t, "/entity", body["field"])
	})

	t.Run("missing records are 404", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		writeError(w, core.ErrNotFound)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("everything else is opaque", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		writeError(w, bytes.ErrTooLarge)

		require.Equal(t, http.StatusInternalServerError, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, "internal error", body["error"])
	})
}
