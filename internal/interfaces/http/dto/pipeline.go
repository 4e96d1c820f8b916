package dto

import (
	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/spreadsheet"
)

// PreviewRequest is the body of POST /pipeline-import/preview. A missing or
// null deals key previews the store as it is; an empty list previews an
// import with no deals.
// @Description Candidate deals to compare with the deal store
type PreviewRequest struct {
	Deals       pipeline.Optional[[]pipeline.CandidateDeal] `json:"deals,omitzero" swaggertype:"array,object"`
	Assignments []pipeline.OwnerAssignment                  `json:"account_assignments"`
}

// ApplyOptionsRequest mirrors the executor's skip switches.
type ApplyOptionsRequest struct {
	SkipNew     bool `json:"skip_new"`
	SkipRemoved bool `json:"skip_removed"`
}

// ApplyRequest is the body of POST /pipeline-import/apply. Either
// preview_id names a stored preview and selected_ids picks entries from it,
// or changes carries entries directly; without selected_ids every supplied
// change is applied.
// @Description Changes to apply
type ApplyRequest struct {
	PreviewID   string                                        `json:"preview_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Changes     []pipeline.ChangeEntry                        `json:"changes"`
	SelectedIDs []string                                      `json:"selected_ids"`
	Assignments pipeline.Optional[[]pipeline.OwnerAssignment] `json:"account_assignments,omitzero" swaggertype:"array,object"`
	Options     ApplyOptionsRequest                           `json:"options"`
}

// ParseResponse is what POST /pipeline-import/parse returns.
// @Description Parsed pipeline workbook
type ParseResponse struct {
	FileName string `json:"file_name" example:"pipeline.xlsx"`
	*spreadsheet.ParseResult
}
