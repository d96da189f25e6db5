package model

import (
	"context"
	"time"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// HostRulesCollection is the collection name of host rules.
const HostRulesCollection = "host-rules"

// HostRule rewrites the host of outgoing requests.
type HostRule struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
	Comment string `json:"comment,omitempty"`
	Updated int64  `json:"updated,omitempty"`
}

func (r *HostRule) setKey(id, rev string) { r.ID, r.Rev = id, rev }

// HostRulesModel stores host rules.
type HostRulesModel struct {
	*docstore.Collection
	now func() time.Time
}

// NewHostRulesModel binds the host rules collection of db.
func NewHostRulesModel(db *docstore.DB) *HostRulesModel {
	return &HostRulesModel{Collection: db.Collection(HostRulesCollection), now: time.Now}
}

// Update stores a rule and stamps its update time. A rule with an id but no
// revision is merged into the stored one.
func (m *HostRulesModel) Update(ctx context.Context, rule *HostRule) (*HostRule, error) {
	if rule == nil || rule.ID == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "rule with an id is required", nil)
	}
	if rule.Rev == "" {
		merged, err := mergeEntity(ctx, m.Collection, rule.ID, rule)
		if err != nil {
			return nil, err
		}
		rule = merged
	}
	return m.put(ctx, rule)
}

func (m *HostRulesModel) put(ctx context.Context, rule *HostRule) (*HostRule, error) {
	rule.Updated = m.now().UnixMilli()
	return putEntity(ctx, m.Collection, rule.ID, rule.Rev, rule)
}

// UpdateBulk stores rules independently. Rules without an id get one.
// errs[i] is the error of rules[i].
func (m *HostRulesModel) UpdateBulk(ctx context.Context, rules []*HostRule) (saved []*HostRule, errs []error) {
	saved = make([]*HostRule, len(rules))
	errs = make([]error, len(rules))
	for i, rule := range rules {
		if rule == nil {
			errs[i] = reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "rule is required", nil)
			continue
		}
		saved[i], errs[i] = m.put(ctx, rule)
	}
	return saved, errs
}

// Remove deletes a rule. An empty rev removes the current revision.
func (m *HostRulesModel) Remove(ctx context.Context, id, rev string) error {
	if rev == "" {
		doc, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		rev = doc.Rev
	}
	return m.Collection.Remove(ctx, id, rev)
}

// List returns every rule in id order.
func (m *HostRulesModel) List(ctx context.Context) ([]*HostRule, error) {
	return listAllEntities[HostRule](ctx, m.Collection)
}

// Clear removes every rule and returns how many were removed.
func (m *HostRulesModel) Clear(ctx context.Context) (int, error) {
	rules, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	for i, rule := range rules {
		if err := m.Collection.Remove(ctx, rule.ID, rule.Rev); err != nil && !docstore.NotFound(err) {
			return i, err
		}
	}
	return len(rules), nil
}
