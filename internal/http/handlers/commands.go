package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/http/response"
	"github.com/yungbote/benefits-backend/internal/platform/ctxutil"
	"github.com/yungbote/benefits-backend/internal/services"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxCommandBody = 1 << 20
	maxKeyLength   = 255
)

type CommandHandler struct {
	commands services.BenefitCommandService
}

func NewCommandHandler(commands services.BenefitCommandService) *CommandHandler {
	return &CommandHandler{commands: commands}
}

// POST /commands/:type
//
// The body is written back exactly as the command service produced or
// replayed it.
func (h *CommandHandler) Execute(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxKeyLength {
		response.Invalid(c, "idempotency key too long")
		return
	}
	var aggregateID uuid.UUID
	if raw := strings.TrimSpace(c.Query("aggregateId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Invalid(c, "aggregateId must be a uuid")
			return
		}
		aggregateID = id
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBody+1))
	if err != nil {
		response.Invalid(c, err.Error())
		return
	}
	if len(payload) > maxCommandBody {
		response.Fail(c, http.StatusRequestEntityTooLarge, domainagg.CodeValidation, "command body too large")
		return
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte(`{}`)
	}

	resp := h.commands.Handle(c.Request.Context(), services.Command{
		Type:           services.CommandType(c.Param("type")),
		AggregateID:    aggregateID,
		Payload:        payload,
		IdempotencyKey: key,
		ActorID:        ctxutil.ActorID(c.Request.Context()),
	})
	if resp.Key != "" {
		c.Header(HeaderIdempotencyKey, resp.Key)
	}
	if resp.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}
