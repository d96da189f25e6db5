package model

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Collection names of environments and variables.
const (
	EnvironmentsCollection = "variables-environments"
	VariablesCollection    = "variables"
)

// DefaultEnvironment always exists implicitly; deleting an environment of
// that name keeps its variables.
const DefaultEnvironment = "default"

// Environment is a named set of variables.
type Environment struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	Name    string `json:"name"`
	Created int64  `json:"created,omitempty"`
}

func (e *Environment) setKey(id, rev string) { e.ID, e.Rev = id, rev }

// Variable belongs to the environment it names.
type Variable struct {
	ID          string `json:"_id"`
	Rev         string `json:"_rev,omitempty"`
	Environment string `json:"environment"`
	Variable    string `json:"variable"`
	Value       string `json:"value,omitempty"`
	Enabled     bool   `json:"enabled,omitempty"`
}

func (v *Variable) setKey(id, rev string) { v.ID, v.Rev = id, rev }

// VariablesModel stores environments and their variables.
type VariablesModel struct {
	environments *docstore.Collection
	variables    *docstore.Collection
	now          func() time.Time
}

// NewVariablesModel binds the environment and variable collections of db.
func NewVariablesModel(db *docstore.DB) *VariablesModel {
	return &VariablesModel{
		environments: db.Collection(EnvironmentsCollection),
		variables:    db.Collection(VariablesCollection),
		now:          time.Now,
	}
}

// UpdateEnvironment creates or renames an environment. Writes always apply to
// the current revision. Renaming moves the environment's variables to the
// new name; an id that no longer exists creates a new environment.
func (m *VariablesModel) UpdateEnvironment(ctx context.Context, env *Environment) (*Environment, error) {
	if env == nil || env.Name == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "environment name is required", nil)
	}
	if env.Created == 0 {
		env.Created = m.now().UnixMilli()
	}

	var oldName string
	if env.ID != "" {
		stored, err := readEntity[Environment](ctx, m.environments, env.ID)
		switch {
		case docstore.NotFound(err):
			env.ID, env.Rev = "", ""
		case err != nil:
			return nil, err
		default:
			env.Rev = stored.Rev
			if stored.Name != env.Name {
				oldName = stored.Name
			}
		}
	}

	saved, err := putEntity(ctx, m.environments, env.ID, env.Rev, env)
	if err != nil {
		return nil, err
	}
	if oldName != "" {
		if err := m.renameVariables(ctx, oldName, saved.Name); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

func (m *VariablesModel) renameVariables(ctx context.Context, from, to string) error {
	vars, err := m.ListVariables(ctx, from)
	if err != nil {
		return err
	}
	for _, v := range vars {
		v.Environment = to
		if _, err := putEntity(ctx, m.variables, v.ID, v.Rev, v); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEnvironment removes an environment and, unless it is the default
// one, its variables.
func (m *VariablesModel) DeleteEnvironment(ctx context.Context, id string) error {
	if id == "" {
		return reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "environment id is required", nil)
	}
	env, err := readEntity[Environment](ctx, m.environments, id)
	if err != nil {
		return err
	}
	if err := m.environments.Remove(ctx, env.ID, env.Rev); err != nil {
		return err
	}
	if strings.EqualFold(env.Name, DefaultEnvironment) {
		return nil
	}

	vars, err := m.ListVariables(ctx, env.Name)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := m.variables.Remove(ctx, v.ID, v.Rev); err != nil && !docstore.NotFound(err) {
			return err
		}
	}
	return nil
}

// ReadEnvironment returns the environment named name, or nil.
func (m *VariablesModel) ReadEnvironment(ctx context.Context, name string) (*Environment, error) {
	envs, err := m.ListEnvironments(ctx)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if env.Name == name {
			return env, nil
		}
	}
	return nil, nil
}

// ListEnvironments returns every environment in id order.
func (m *VariablesModel) ListEnvironments(ctx context.Context) ([]*Environment, error) {
	return listAllEntities[Environment](ctx, m.environments)
}

// ListVariables returns the variables of an environment, matching its name
// without regard to case.
func (m *VariablesModel) ListVariables(ctx context.Context, environment string) ([]*Variable, error) {
	all, err := listAllEntities[Variable](ctx, m.variables)
	if err != nil {
		return nil, err
	}
	out := []*Variable{}
	for _, v := range all {
		if v.Environment != "" && strings.EqualFold(v.Environment, environment) {
			out = append(out, v)
		}
	}
	return out, nil
}

// UpdateVariable creates or updates a variable at its current revision.
func (m *VariablesModel) UpdateVariable(ctx context.Context, v *Variable) (*Variable, error) {
	if v == nil || v.Variable == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "variable name is required", nil)
	}
	v.Rev = ""
	if v.ID != "" {
		doc, err := m.variables.Get(ctx, v.ID)
		switch {
		case err == nil:
			v.Rev = doc.Rev
		case !docstore.NotFound(err):
			return nil, err
		}
	}
	return putEntity(ctx, m.variables, v.ID, v.Rev, v)
}

// DeleteVariable removes a variable.
func (m *VariablesModel) DeleteVariable(ctx context.Context, id string) error {
	if id == "" {
		return reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "variable id is required", nil)
	}
	doc, err := m.variables.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.variables.Remove(ctx, id, doc.Rev)
}
