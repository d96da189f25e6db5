package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/reqfind/internal/docstore"
)

// entity is a pointer to a stored record that carries its own id and revision.
type entity[T any] interface {
	*T
	setKey(id, rev string)
}

func decodeEntity[T any, P entity[T]](doc docstore.Document) (P, error) {
	p := P(new(T))
	if err := json.Unmarshal(doc.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", doc.ID, err)
	}
	p.setKey(doc.ID, doc.Rev)
	return p, nil
}

func readEntity[T any, P entity[T]](ctx context.Context, c *docstore.Collection, id string) (P, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeEntity[T, P](doc)
}

// putEntity stores v under id and rev ("" id assigns one) and returns a copy
// carrying the stored key.
func putEntity[T any, P entity[T]](ctx context.Context, c *docstore.Collection, id, rev string, v P) (P, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	doc, err := c.Put(ctx, docstore.Document{ID: id, Rev: rev, Data: data})
	if err != nil {
		return nil, err
	}
	out := P(new(T))
	*out = *v
	out.setKey(doc.ID, doc.Rev)
	return out, nil
}

// mergeEntity overlays the fields set in v onto the stored record id. v must
// have an empty revision. A missing record leaves v as is.
func mergeEntity[T any, P entity[T]](ctx context.Context, c *docstore.Collection, id string, v P) (P, error) {
	stored, err := readEntity[T, P](ctx, c, id)
	if docstore.NotFound(err) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	// v has no revision, so the stored one survives the overlay.
	if err := json.Unmarshal(data, stored); err != nil {
		return nil, fmt.Errorf("merge %s: %w", id, err)
	}
	return stored, nil
}

func listEntities[T any, P entity[T]](ctx context.Context, c *docstore.Collection, opts docstore.ListOptions) ([]P, string, error) {
	docs, next, err := c.List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	out := make([]P, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeEntity[T, P](doc)
		if err != nil {
			return nil, "", err
		}
		out = append(out, p)
	}
	return out, next, nil
}

// listAllEntities reads the whole collection page by page.
func listAllEntities[T any, P entity[T]](ctx context.Context, c *docstore.Collection) ([]P, error) {
	var all []P
	opts := docstore.ListOptions{Limit: 500}
	for {
		page, next, err := listEntities[T, P](ctx, c, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		opts.StartAfter = next
	}
}
