package model

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/Aman-CERP/reqfind/internal/dispatch"
	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
)

// Event kinds answered by the models.
const (
	EventRequestGet     = "request.get"
	EventRequestPut     = "request.put"
	EventRequestRemove  = "request.remove"
	EventRequestList    = "request.list"
	EventRequestQuery   = "request.query"
	EventRequestReindex = "request.reindex"
	EventHistoryStore   = "history.store"
	EventHistoryQuery   = "history.query"
	EventHistoryList    = "history.list"

	EventWSHistoryStore = "wshistory.store"
	EventWSHistoryQuery = "wshistory.query"
	EventWSHistoryList  = "wshistory.list"

	EventProjectGet           = "project.get"
	EventProjectGetBulk       = "project.getBulk"
	EventProjectPut           = "project.put"
	EventProjectPutBulk       = "project.putBulk"
	EventProjectRemove        = "project.remove"
	EventProjectList          = "project.list"
	EventProjectListAll       = "project.listAll"
	EventProjectAddRequest    = "project.addRequest"
	EventProjectMoveRequest   = "project.moveRequest"
	EventProjectRemoveRequest = "project.removeRequest"

	EventHostRulesPut     = "hostrules.put"
	EventHostRulesPutBulk = "hostrules.putBulk"
	EventHostRulesRemove  = "hostrules.remove"
	EventHostRulesList    = "hostrules.list"
	EventHostRulesClear   = "hostrules.clear"

	EventEnvRead   = "env.read"
	EventEnvPut    = "env.put"
	EventEnvRemove = "env.remove"
	EventEnvList   = "env.list"
	EventVarList   = "var.list"
	EventVarPut    = "var.put"
	EventVarRemove = "var.remove"
)

// ModelPriority is the chain priority of the model handlers.
const ModelPriority = 0

type requestGetPayload struct {
	Type string `json:"type" validate:"required,oneof=saved history"`
	ID   string `json:"id" validate:"required"`
}

type requestPutPayload struct {
	Type    string   `json:"type" validate:"required,oneof=saved history"`
	Request *Request `json:"request" validate:"required"`
}

type requestRemovePayload struct {
	Type string `json:"type" validate:"required,oneof=saved history"`
	ID   string `json:"id" validate:"required"`
	Rev  string `json:"rev" validate:"required"`
}

type requestListPayload struct {
	Type       string `json:"type" validate:"required,oneof=saved history"`
	Limit      int    `json:"limit" validate:"gte=0"`
	StartAfter string `json:"startAfter"`
}

type requestReindexPayload struct {
	Type string `json:"type" validate:"omitempty,oneof=saved history"`
}

// ReindexResult counts the requests submitted for reindexing per type.
type ReindexResult map[string]int

type historyStorePayload struct {
	URL string `json:"url" validate:"required"`
}

type historyQueryPayload struct {
	Q string `json:"q" validate:"required"`
}

type pagePayload struct {
	Limit      int    `json:"limit" validate:"gte=0"`
	StartAfter string `json:"startAfter"`
}

func (p *pagePayload) options() docstore.ListOptions {
	return docstore.ListOptions{Limit: p.Limit, StartAfter: p.StartAfter}
}

type idPayload struct {
	ID string `json:"id" validate:"required"`
}

type idsPayload struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type projectPutPayload struct {
	Project *Project `json:"project" validate:"required"`
}

type projectPutBulkPayload struct {
	Projects []*Project `json:"projects" validate:"required,min=1"`
}

type projectListAllPayload struct {
	IDs []string `json:"ids"`
}

type projectLinkPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	RequestID string `json:"requestId" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=saved history"`
	Position  *int   `json:"position" validate:"omitempty,gte=0"`
}

type projectUnlinkPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	RequestID string `json:"requestId" validate:"required"`
}

type hostRulePutPayload struct {
	Rule *HostRule `json:"rule" validate:"required"`
}

type hostRulesPutBulkPayload struct {
	Rules []*HostRule `json:"rules" validate:"required,min=1"`
}

type hostRuleRemovePayload struct {
	ID  string `json:"id" validate:"required"`
	Rev string `json:"rev"`
}

type envReadPayload struct {
	Name string `json:"name" validate:"required"`
}

type envPutPayload struct {
	Environment *Environment `json:"environment" validate:"required"`
}

type varListPayload struct {
	Environment string `json:"environment" validate:"required"`
}

type varPutPayload struct {
	Variable *Variable `json:"variable" validate:"required"`
}

type emptyPayload struct{}

// Page is one page of a collection listing.
type Page[T any] struct {
	Rows []T    `json:"rows"`
	Next string `json:"next,omitempty"`
}

// BulkResult pairs each stored item with its error; Errors[i] is nil when
// Rows[i] was stored.
type BulkResult[T any] struct {
	Rows   []T               `json:"rows"`
	Errors []*reqerrors.Info `json:"errors"`
}

func bulkResult[T any](rows []T, errs []error) BulkResult[T] {
	infos := make([]*reqerrors.Info, len(errs))
	for i, err := range errs {
		infos[i] = reqerrors.ToInfo(err)
	}
	return BulkResult[T]{Rows: rows, Errors: infos}
}

// Removed acknowledges a removal.
type Removed struct {
	ID string `json:"id"`
}

// Cleared counts the items a clear removed.
type Cleared struct {
	Removed int `json:"removed"`
}

// ListResult is a page of requests.
type ListResult = Page[*Request]

var validate = validator.New()

// decode unmarshals and validates an event payload.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage, "malformed payload: "+err.Error(), err)
	}
	if err := validate.Struct(v); err != nil {
		return reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "invalid payload: "+err.Error(), err)
	}
	return nil
}

// handle builds a handler that decodes P and calls fn.
func handle[P any](kind string, fn func(ctx context.Context, p *P) (any, error)) dispatch.Handler {
	return dispatch.KindHandler(kind, func(ctx context.Context, raw json.RawMessage) (any, error) {
		p := new(P)
		if err := decode(raw, p); err != nil {
			return nil, err
		}
		return fn(ctx, p)
	})
}

// RegisterHandlers adds the handlers of every model to chain.
func RegisterHandlers(chain *dispatch.Chain, m *Models) {
	registerRequestHandlers(chain, m.Requests)
	registerHistoryHandlers(chain, m.History, EventHistoryStore, EventHistoryQuery, EventHistoryList)
	registerHistoryHandlers(chain, m.WebsocketHistory, EventWSHistoryStore, EventWSHistoryQuery, EventWSHistoryList)
	registerProjectHandlers(chain, m.Projects)
	registerHostRulesHandlers(chain, m.HostRules)
	registerVariablesHandlers(chain, m.Variables)
}

func registerRequestHandlers(chain *dispatch.Chain, requests *RequestModel) {
	chain.Register(EventRequestGet, ModelPriority, handle(EventRequestGet,
		func(ctx context.Context, p *requestGetPayload) (any, error) {
			coll, err := requests.Collection(p.Type)
			if err != nil {
				return nil, err
			}
			return coll.Read(ctx, p.ID)
		}))

	chain.Register(EventRequestPut, ModelPriority, handle(EventRequestPut,
		func(ctx context.Context, p *requestPutPayload) (any, error) {
			coll, err := requests.Collection(p.Type)
			if err != nil {
				return nil, err
			}
			return coll.Update(ctx, p.Request)
		}))

	chain.Register(EventRequestRemove, ModelPriority, handle(EventRequestRemove,
		func(ctx context.Context, p *requestRemovePayload) (any, error) {
			coll, err := requests.Collection(p.Type)
			if err != nil {
				return nil, err
			}
			return nil, coll.Remove(ctx, p.ID, p.Rev)
		}))

	chain.Register(EventRequestList, ModelPriority, handle(EventRequestList,
		func(ctx context.Context, p *requestListPayload) (any, error) {
			coll, err := requests.Collection(p.Type)
			if err != nil {
				return nil, err
			}
			rows, next, err := coll.List(ctx, docstore.ListOptions{Limit: p.Limit, StartAfter: p.StartAfter})
			if err != nil {
				return nil, err
			}
			return ListResult{Rows: rows, Next: next}, nil
		}))

	chain.Register(EventRequestQuery, ModelPriority, handle(EventRequestQuery,
		func(ctx context.Context, p *search.Query) (any, error) {
			return requests.Query(ctx, *p)
		}))

	chain.Register(EventRequestReindex, ModelPriority, handle(EventRequestReindex,
		func(ctx context.Context, p *requestReindexPayload) (any, error) {
			colls := []*Requests{requests.Saved, requests.History}
			if p.Type != "" {
				coll, err := requests.Collection(p.Type)
				if err != nil {
					return nil, err
				}
				colls = []*Requests{coll}
			}
			out := ReindexResult{}
			for _, coll := range colls {
				n, err := coll.IndexAll(ctx)
				if err != nil {
					return nil, err
				}
				out[coll.Type()] = n
			}
			return out, nil
		}))

}

func registerHistoryHandlers(chain *dispatch.Chain, history *URLHistoryModel, storeKind, queryKind, listKind string) {
	chain.Register(storeKind, ModelPriority, handle(storeKind,
		func(ctx context.Context, p *historyStorePayload) (any, error) {
			return history.Store(ctx, p.URL)
		}))

	chain.Register(queryKind, ModelPriority, handle(queryKind,
		func(ctx context.Context, p *historyQueryPayload) (any, error) {
			return history.Query(ctx, p.Q)
		}))

	chain.Register(listKind, ModelPriority, handle(listKind,
		func(ctx context.Context, p *pagePayload) (any, error) {
			rows, next, err := history.List(ctx, p.options())
			if err != nil {
				return nil, err
			}
			return Page[*URLEntry]{Rows: rows, Next: next}, nil
		}))
}

func registerProjectHandlers(chain *dispatch.Chain, projects *ProjectModel) {
	chain.Register(EventProjectGet, ModelPriority, handle(EventProjectGet,
		func(ctx context.Context, p *idPayload) (any, error) {
			return projects.Read(ctx, p.ID)
		}))

	chain.Register(EventProjectGetBulk, ModelPriority, handle(EventProjectGetBulk,
		func(ctx context.Context, p *idsPayload) (any, error) {
			return projects.ReadBulk(ctx, p.IDs)
		}))

	chain.Register(EventProjectPut, ModelPriority, handle(EventProjectPut,
		func(ctx context.Context, p *projectPutPayload) (any, error) {
			return projects.Update(ctx, p.Project)
		}))

	chain.Register(EventProjectPutBulk, ModelPriority, handle(EventProjectPutBulk,
		func(ctx context.Context, p *projectPutBulkPayload) (any, error) {
			rows, errs := projects.UpdateBulk(ctx, p.Projects)
			return bulkResult(rows, errs), nil
		}))

	chain.Register(EventProjectRemove, ModelPriority, handle(EventProjectRemove,
		func(ctx context.Context, p *idPayload) (any, error) {
			if err := projects.Remove(ctx, p.ID); err != nil {
				return nil, err
			}
			return Removed{ID: p.ID}, nil
		}))

	chain.Register(EventProjectList, ModelPriority, handle(EventProjectList,
		func(ctx context.Context, p *pagePayload) (any, error) {
			rows, next, err := projects.List(ctx, p.options())
			if err != nil {
				return nil, err
			}
			return Page[*Project]{Rows: rows, Next: next}, nil
		}))

	chain.Register(EventProjectListAll, ModelPriority, handle(EventProjectListAll,
		func(ctx context.Context, p *projectListAllPayload) (any, error) {
			return projects.ListAll(ctx, p.IDs)
		}))

	chain.Register(EventProjectAddRequest, ModelPriority, handle(EventProjectAddRequest,
		func(ctx context.Context, p *projectLinkPayload) (any, error) {
			return projects.AddRequest(ctx, p.ProjectID, p.RequestID, p.Type, p.Position)
		}))

	chain.Register(EventProjectMoveRequest, ModelPriority, handle(EventProjectMoveRequest,
		func(ctx context.Context, p *projectLinkPayload) (any, error) {
			return projects.MoveRequest(ctx, p.ProjectID, p.RequestID, p.Type, p.Position)
		}))

	chain.Register(EventProjectRemoveRequest, ModelPriority, handle(EventProjectRemoveRequest,
		func(ctx context.Context, p *projectUnlinkPayload) (any, error) {
			if err := projects.RemoveRequest(ctx, p.ProjectID, p.RequestID); err != nil {
				return nil, err
			}
			return Removed{ID: p.RequestID}, nil
		}))
}

func registerHostRulesHandlers(chain *dispatch.Chain, rules *HostRulesModel) {
	chain.Register(EventHostRulesPut, ModelPriority, handle(EventHostRulesPut,
		func(ctx context.Context, p *hostRulePutPayload) (any, error) {
			return rules.Update(ctx, p.Rule)
		}))

	chain.Register(EventHostRulesPutBulk, ModelPriority, handle(EventHostRulesPutBulk,
		func(ctx context.Context, p *hostRulesPutBulkPayload) (any, error) {
			rows, errs := rules.UpdateBulk(ctx, p.Rules)
			return bulkResult(rows, errs), nil
		}))

	chain.Register(EventHostRulesRemove, ModelPriority, handle(EventHostRulesRemove,
		func(ctx context.Context, p *hostRuleRemovePayload) (any, error) {
			if err := rules.Remove(ctx, p.ID, p.Rev); err != nil {
				return nil, err
			}
			return Removed{ID: p.ID}, nil
		}))

	chain.Register(EventHostRulesList, ModelPriority, handle(EventHostRulesList,
		func(ctx context.Context, _ *emptyPayload) (any, error) {
			return rules.List(ctx)
		}))

	chain.Register(EventHostRulesClear, ModelPriority, handle(EventHostRulesClear,
		func(ctx context.Context, _ *emptyPayload) (any, error) {
			n, err := rules.Clear(ctx)
			if err != nil {
				return nil, err
			}
			return Cleared{Removed: n}, nil
		}))
}

func registerVariablesHandlers(chain *dispatch.Chain, vars *VariablesModel) {
	chain.Register(EventEnvRead, ModelPriority, handle(EventEnvRead,
		func(ctx context.Context, p *envReadPayload) (any, error) {
			return vars.ReadEnvironment(ctx, p.Name)
		}))

	chain.Register(EventEnvPut, ModelPriority, handle(EventEnvPut,
		func(ctx context.Context, p *envPutPayload) (any, error) {
			return vars.UpdateEnvironment(ctx, p.Environment)
		}))

	chain.Register(EventEnvRemove, ModelPriority, handle(EventEnvRemove,
		func(ctx context.Context, p *idPayload) (any, error) {
			if err := vars.DeleteEnvironment(ctx, p.ID); err != nil {
				return nil, err
			}
			return Removed{ID: p.ID}, nil
		}))

	chain.Register(EventEnvList, ModelPriority, handle(EventEnvList,
		func(ctx context.Context, _ *emptyPayload) (any, error) {
			return vars.ListEnvironments(ctx)
		}))

	chain.Register(EventVarList, ModelPriority, handle(EventVarList,
		func(ctx context.Context, p *varListPayload) (any, error) {
			return vars.ListVariables(ctx, p.Environment)
		}))

	chain.Register(EventVarPut, ModelPriority, handle(EventVarPut,
		func(ctx context.Context, p *varPutPayload) (any, error) {
			return vars.UpdateVariable(ctx, p.Variable)
		}))

	chain.Register(EventVarRemove, ModelPriority, handle(EventVarRemove,
		func(ctx context.Context, p *idPayload) (any, error) {
			if err := vars.DeleteVariable(ctx, p.ID); err != nil {
				return nil, err
			}
			return Removed{ID: p.ID}, nil
		}))
}
