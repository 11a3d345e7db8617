package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/http/response"
	"github.com/yungbote/benefits-backend/internal/services"
)

type QueryHandler struct {
	queries services.BenefitQueryService
}

func NewQueryHandler(queries services.BenefitQueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// GET /queries/:id
func (h *QueryHandler) GetBenefit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Invalid(c, "benefit id must be a uuid")
		return
	}
	view, err := h.queries.Get(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, services.StatusForCode, err)
		return
	}
	response.OK(c, view)
}

// GET /queries?subjectId=&state=&type=&page=&size=
func (h *QueryHandler) Search(c *gin.Context) {
	page, err := intParam(c, "page")
	if err != nil {
		response.Invalid(c, err.Error())
		return
	}
	size, err := intParam(c, "size")
	if err != nil {
		response.Invalid(c, err.Error())
		return
	}
	out, err := h.queries.Search(c.Request.Context(), services.SearchQuery{
		SubjectID:   c.Query("subjectId"),
		State:       c.Query("state"),
		BenefitType: c.Query("type"),
		Page:        page,
		Size:        size,
	})
	if err != nil {
		response.DomainError(c, services.StatusForCode, err)
		return
	}
	response.OK(c, out)
}

// GET /queries/subjects/:subjectId/summary
func (h *QueryHandler) SubjectSummary(c *gin.Context) {
	sum, err := h.queries.SubjectSummary(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		response.DomainError(c, services.StatusForCode, err)
		return
	}
	response.OK(c, sum)
}

// GET /catalog/benefit-types
func (h *QueryHandler) Catalog(c *gin.Context) {
	response.OK(c, gin.H{"items": h.queries.Catalog()})
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
