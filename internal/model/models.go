package model

import (
	"log/slog"

	"github.com/Aman-CERP/reqfind/internal/docstore"
)

// Models is every collection model the daemon answers events for.
type Models struct {
	Requests         *RequestModel
	History          *URLHistoryModel
	WebsocketHistory *URLHistoryModel
	Projects         *ProjectModel
	HostRules        *HostRulesModel
	Variables        *VariablesModel
}

// NewModels binds all models to db. Request writes run index tasks on tasks.
func NewModels(db *docstore.DB, tasks TaskRunner, logger *slog.Logger) *Models {
	requests := NewRequestModel(db, tasks, logger)
	return &Models{
		Requests:         requests,
		History:          NewURLHistoryModel(db),
		WebsocketHistory: NewWebsocketURLHistoryModel(db),
		Projects:         NewProjectModel(db, requests),
		HostRules:        NewHostRulesModel(db),
		Variables:        NewVariablesModel(db),
	}
}
