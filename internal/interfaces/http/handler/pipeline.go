package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	pipelineapp "github.com/scout/backend/internal/application/pipeline"
	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/spreadsheet"
	"github.com/scout/backend/internal/interfaces/http/dto"
)

// PipelineWorkflow is the part of pipelineapp.Workflow the handler drives.
type PipelineWorkflow interface {
	Preview(ctx context.Context, cmd pipelineapp.PreviewCommand) (*pipeline.Preview, error)
	GetPreview(ctx context.Context, id uuid.UUID) (*pipeline.Preview, error)
	Apply(ctx context.Context, req pipelineapp.ApplyRequest) (*pipelineapp.ApplyResult, error)
}

// WorkbookParser reads an uploaded pipeline workbook.
type WorkbookParser interface {
	Parse(ctx context.Context, filename string, r io.Reader) (*spreadsheet.ParseResult, error)
}

// PipelineHandler serves the pipeline import flow: parse an upload,
// preview it against the deal store, then apply the selected changes.
type PipelineHandler struct {
	BaseHandler
	workflow PipelineWorkflow
	parser   WorkbookParser
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(workflow PipelineWorkflow, parser WorkbookParser, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		BaseHandler: BaseHandler{Logger: logger},
		workflow:    workflow,
		parser:      parser,
	}
}

// Parse godoc
// @ID           parsePipelineWorkbook
// @Summary      Parse a pipeline workbook
// @Description  Reads the Pipeline and Account Assignments sheets of an .xlsx (or a .csv Pipeline sheet) into candidate deals. Nothing is stored.
// @Tags         pipeline-import
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Pipeline workbook"
// @Success      200 {object} APIResponse[dto.ParseResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Router       /pipeline-import/parse [post]
func (h *PipelineHandler) Parse(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.ErrorWithCode(c, dto.ErrCodeImportFileTooLarge, spreadsheet.ErrFileTooLarge.Error())
			return
		}
		h.ErrorWithCode(c, dto.ErrCodeImportInvalidFile, "file is required")
		return
	}
	defer file.Close()

	result, err := h.parser.Parse(c.Request.Context(), header.Filename, file)
	if err != nil {
		if code, ok := spreadsheet.FileErrorCode(err); ok {
			h.ErrorWithCode(c, code, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ParseResponse{FileName: header.Filename, ParseResult: result})
}

// CurrentState godoc
// @ID           getPipelineCurrentState
// @Summary      Preview the deal store as it is
// @Description  Returns every stored deal as an unchanged entry. The preview is kept as a session.
// @Tags         pipeline-import
// @Produce      json
// @Success      200 {object} APIResponse[pipeline.Preview]
// @Failure      500 {object} ErrorResponse
// @Router       /pipeline-import/preview [get]
func (h *PipelineHandler) CurrentState(c *gin.Context) {
	preview, err := h.workflow.Preview(c.Request.Context(), pipelineapp.PreviewCommand{})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// Preview godoc
// @ID           previewPipelineImport
// @Summary      Preview a pipeline import
// @Description  Classifies candidate deals against the deal store as new, modified, unchanged or removed. Nothing is written.
// @Tags         pipeline-import
// @Accept       json
// @Produce      json
// @Param        request body dto.PreviewRequest true "Candidate deals"
// @Success      200 {object} APIResponse[pipeline.Preview]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /pipeline-import/preview [post]
func (h *PipelineHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}

	preview, err := h.workflow.Preview(c.Request.Context(), pipelineapp.PreviewCommand{
		Candidates:  req.Deals,
		Assignments: req.Assignments,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// GetPreview godoc
// @ID           getPipelinePreview
// @Summary      Get a stored preview
// @Tags         pipeline-import
// @Produce      json
// @Param        id path string true "Preview ID"
// @Success      200 {object} APIResponse[pipeline.Preview]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /pipeline-import/preview/{id} [get]
func (h *PipelineHandler) GetPreview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, "invalid preview id")
		return
	}

	preview, err := h.workflow.GetPreview(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// Apply godoc
// @ID           applyPipelineImport
// @Summary      Apply selected changes
// @Description  Applies the selected entries one by one. Per-entry failures are reported in the result with HTTP 200; only malformed requests, unknown previews and a concurrent apply are rejected.
// @Tags         pipeline-import
// @Accept       json
// @Produce      json
// @Param        request body dto.ApplyRequest true "Changes to apply"
// @Success      200 {object} APIResponse[pipelineapp.ApplyResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /pipeline-import/apply [post]
func (h *PipelineHandler) Apply(c *gin.Context) {
	var req dto.ApplyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd := pipelineapp.ApplyRequest{
		Changes:     req.Changes,
		SelectedIDs: req.SelectedIDs,
		Assignments: req.Assignments,
		Options: pipelineapp.ApplyOptions{
			SkipNew:     req.Options.SkipNew,
			SkipRemoved: req.Options.SkipRemoved,
		},
	}
	if req.PreviewID != "" {
		id, err := uuid.Parse(req.PreviewID)
		if err != nil {
			h.HandleError(c, shared.ErrInvalidInput.WithMessage("invalid preview_id"))
			return
		}
		cmd.PreviewID = &id
	}

	result, err := h.workflow.Apply(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.log(c).Info("pipeline import applied",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("removed", result.Removed),
		zap.Int("accounts_updated", result.AccountsUpdated),
		zap.Int("errors", result.TotalErrors),
		zap.Bool("timed_out", result.TimedOut),
	)
	h.Success(c, result)
}
