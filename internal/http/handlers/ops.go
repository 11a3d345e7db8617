package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/benefits-backend/internal/http/response"
	"github.com/yungbote/benefits-backend/internal/platform/ctxutil"
	"github.com/yungbote/benefits-backend/internal/platform/resilience"
	"github.com/yungbote/benefits-backend/internal/services"
)

// BreakerView is the read side of the breaker registry.
type BreakerView interface {
	Snapshots() []resilience.BreakerSnapshot
	AnyOpen() bool
}

type OpsHandler struct {
	deadLetters services.DeadLetterService
	breakers    BreakerView
}

func NewOpsHandler(deadLetters services.DeadLetterService, breakers BreakerView) *OpsHandler {
	return &OpsHandler{deadLetters: deadLetters, breakers: breakers}
}

// GET /ops/dead-letters?status=&page=&size=
func (h *OpsHandler) ListDeadLetters(c *gin.Context) {
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
	out, err := h.deadLetters.List(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		response.DomainError(c, services.StatusForCode, err)
		return
	}
	response.OK(c, out)
}

// POST /ops/dead-letters/:id/replay
func (h *OpsHandler) ReplayDeadLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Invalid(c, "dead letter id must be a uuid")
		return
	}
	row, err := h.deadLetters.Replay(c.Request.Context(), id, ctxutil.ActorID(c.Request.Context()))
	if err != nil {
		response.DomainError(c, services.StatusForCode, err)
		return
	}
	response.OK(c, gin.H{"dead_letter": row})
}

// GET /ops/breakers
func (h *OpsHandler) Breakers(c *gin.Context) {
	response.OK(c, gin.H{"items": h.breakers.Snapshots()})
}
