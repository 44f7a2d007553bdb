package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"postsync/internal/core"
	"postsync/internal/ingest"
	"postsync/pkg/digest"
)

// Headers set by the upstream authentication middleware.
const (
	entityHeader      = "Postsync-Entity"
	credentialsHeader = "Postsync-Credentials-Id"
)

type Backend struct {
	Logger       *slog.Logger
	Orchestrator *ingest.Orchestrator
	Users        core.UserRepository
	Posts        core.PostRepository
}

func (b *Backend) Init(context.Context) error {
	b.Logger = b.Logger.With("component", "api.Backend")
	return nil
}

func (b *Backend) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := b.actingUser(w, r)
	if !ok {
		return
	}

	req, ok := b.decodeRequest(w, r, user)
	if !ok {
		return
	}

	post, err := b.Orchestrator.CreateFromRequest(r.Context(), req, creationMode(user, req.Submission))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// creationMode picks the attribution for a local creation: a submission
// naming a different entity is a trusted caller (relationship bootstrap)
// creating a post on that entity's behalf.
func creationMode(user *core.User, sub *core.Submission) core.Mode {
	if sub.Entity != "" && sub.Entity != user.Entity {
		return core.EntityMode(sub.Entity)
	}
	return core.NormalMode()
}

// ReceiveNotification ingests a remote party's assertion of a post or
// subscription event. The asserting entity rides in the payload; the auth
// resource it presented rides in a trusted header.
func (b *Backend) ReceiveNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := b.actingUser(w, r)
	if !ok {
		return
	}

	req, ok := b.decodeRequest(w, r, user)
	if !ok {
		return
	}

	mode := core.NotificationMode(req.Submission.Entity, r.Header.Get(credentialsHeader))
	if req.Submission.PublicID != "" {
		mode = mode.WithPublicID(req.Submission.PublicID)
	}

	post, err := b.Orchestrator.CreateFromRequest(r.Context(), req, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (b *Backend) GetPost(w http.ResponseWriter, r *http.Request) {
	user, ok := b.actingUser(w, r)
	if !ok {
		return
	}

	post, err := b.Posts.FindLatest(r.Context(), user.ID, chi.URLParam(r, "publicID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// ListPosts serves the user's feed, filtered by post_types, since_id,
// before_id and limit query parameters.
func (b *Backend) ListPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := b.actingUser(w, r)
	if !ok {
		return
	}

	posts, err := b.Posts.List(r.Context(), user.ID, parseFeedQuery(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

// parseFeedQuery reads the feed filters leniently: malformed numbers count
// as absent, like the rest of the boundary.
func parseFeedQuery(values url.Values) core.FeedQuery {
	q := core.FeedQuery{}

	if types := values.Get("post_types"); types != "" {
		q.Types = strings.Split(types, ",")
	}
	if v, err := strconv.ParseInt(values.Get("since_id"), 10, 64); err == nil {
		q.SinceID = v
	}
	if v, err := strconv.ParseInt(values.Get("before_id"), 10, 64); err == nil {
		q.BeforeID = v
	}
	if v, err := strconv.Atoi(values.Get("limit")); err == nil {
		q.Limit = v
	}

	return q
}

func (b *Backend) actingUser(w http.ResponseWriter, r *http.Request) (*core.User, bool) {
	entity := r.Header.Get(entityHeader)
	if entity == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no authenticated entity"})
		return nil, false
	}

	user, err := b.Users.FindByEntity(r.Context(), entity)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	return user, true
}

// decodeRequest reads either a bare JSON post or a multipart request whose
// "post" part is the JSON and whose remaining parts are raw attachment
// uploads (part name = category, filename = declared name).
func (b *Backend) decodeRequest(w http.ResponseWriter, r *http.Request, user *core.User) (*core.Request, bool) {
	req := &core.Request{User: user}

	var body []byte

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				writeError(w, err)
				return nil, false
			}

			if part.FormName() == "post" {
				body, err = io.ReadAll(part)
				if err != nil {
					writeError(w, err)
					return nil, false
				}
				continue
			}

			// Digest the upload in the same pass that buffers it.
			var buf bytes.Buffer
			d, size, err := digest.HexReader(io.TeeReader(part, &buf))
			if err != nil {
				writeError(w, err)
				return nil, false
			}

			req.Uploads = append(req.Uploads, core.Upload{
				Name:        part.FileName(),
				Category:    part.FormName(),
				ContentType: part.Header.Get("Content-Type"),
				Digest:      d,
				Size:        size,
				Data:        buf.Bytes(),
			})
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err)
			return nil, false
		}
	}

	submission, err := ingest.DecodeSubmission(body)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	req.Submission = submission
	return req, true
}

func writeError(w http.ResponseWriter, err error) {
	var ve *core.ValidationError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
