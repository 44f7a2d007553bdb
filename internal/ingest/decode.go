package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Jeffail/gabs"

	"postsync/internal/core"
)

// DecodeSubmission turns a raw submitted data object into the typed
// core.Submission. Shape checking happens once here; downstream components
// branch on the typed result and never re-probe the raw JSON.
//
// Loose shapes follow the protocol's lenient reading: fields of the wrong
// kind (a non-array mentions list, a non-object permissions value) are
// treated as absent rather than rejected. Only a missing type is fatal at
// this stage.
func DecodeSubmission(raw []byte) (*core.Submission, error) {
	c, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, core.NewValidationError("malformed submission: %v", err)
	}

	sub := &core.Submission{}

	typeURI, ok := c.Path("type").Data().(string)
	if !ok || typeURI == "" {
		return nil, core.NewFieldValidationError("/type", "is required")
	}
	sub.Type = typeURI

	if entity, ok := c.Path("entity").Data().(string); ok {
		sub.Entity = entity
	}

	if id, ok := c.Path("id").Data().(string); ok {
		sub.PublicID = id
	}

	if c.Exists("content") {
		sub.Content = json.RawMessage(c.Path("content").Bytes())
	}

	if publishedAt, ok := c.Path("published_at").Data().(float64); ok {
		v := int64(publishedAt)
		sub.PublishedAt = &v
	}

	if parents, ok := c.Path("version.parents").Data().([]any); ok {
		spec := &core.VersionSpec{}
		for _, item := range parents {
			ref := core.ParentRef{}
			if m, ok := item.(map[string]any); ok {
				ref.Version, _ = m["version"].(string)
				ref.Post, _ = m["post"].(string)
			}
			spec.Parents = append(spec.Parents, ref)
		}
		sub.Version = spec
	}

	if m, ok := c.Path("permissions").Data().(map[string]any); ok {
		spec := &core.PermissionsSpec{}
		spec.Public = m["public"] == true
		if entities, ok := m["entities"].([]any); ok {
			for _, e := range entities {
				if s, ok := e.(string); ok {
					spec.Entities = append(spec.Entities, s)
				}
			}
		}
		sub.Permissions = spec
	}

	sub.Mentions = decodePostRefs(c.Path("mentions"))
	sub.Refs = decodePostRefs(c.Path("refs"))
	sub.Attachments = decodeAttachmentRefs(c.Path("attachments"))

	return sub, nil
}

// DecodeSubmissionBatch decodes an import file: either a JSON array of data
// objects or a single object. The first malformed item aborts the batch,
// named by its index.
func DecodeSubmissionBatch(raw []byte) ([]*core.Submission, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		sub, err := DecodeSubmission(raw)
		if err != nil {
			return nil, err
		}
		return []*core.Submission{sub}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, core.NewValidationError("malformed submission batch: %v", err)
	}

	subs := make([]*core.Submission, 0, len(items))
	for i, item := range items {
		sub, err := DecodeSubmission(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

func decodePostRefs(c *gabs.Container) []core.PostRef {
	items, ok := c.Data().([]any)
	if !ok {
		return nil
	}

	var refs []core.PostRef
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		ref := core.PostRef{}
		if entity, ok := m["entity"].(string); ok {
			ref.Entity = &entity
		}
		ref.Post, _ = m["post"].(string)
		ref.Type, _ = m["type"].(string)
		if public, ok := m["public"].(bool); ok {
			ref.Public = &public
		}
		refs = append(refs, ref)
	}
	return refs
}

func decodeAttachmentRefs(c *gabs.Container) []core.AttachmentRef {
	items, ok := c.Data().([]any)
	if !ok {
		return nil
	}

	var refs []core.AttachmentRef
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		ref := core.AttachmentRef{}
		ref.Digest, _ = m["digest"].(string)
		if size, ok := m["size"].(float64); ok {
			ref.Size = int64(size)
		}
		ref.Name, _ = m["name"].(string)
		ref.Category, _ = m["category"].(string)
		ref.ContentType, _ = m["content_type"].(string)
		refs = append(refs, ref)
	}
	return refs
}
