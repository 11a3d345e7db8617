package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/benefits-backend/internal/clients/notification"
	"github.com/yungbote/benefits-backend/internal/data/repos"
	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/domain/benefits"
	"github.com/yungbote/benefits-backend/internal/domain/events"
	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
	"github.com/yungbote/benefits-backend/internal/platform/keylock"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

type CommandType string

const (
	CommandAssign    CommandType = "assign-benefit"
	CommandApprove   CommandType = "approve-benefit"
	CommandSuspend   CommandType = "suspend-benefit"
	CommandReinstate CommandType = "reinstate-benefit"
	CommandRevoke    CommandType = "revoke-benefit"
	CommandModify    CommandType = "modify-benefit"
)

var commandActions = map[CommandType]domainagg.BenefitAction{
	CommandApprove:   domainagg.ActionApprove,
	CommandSuspend:   domainagg.ActionSuspend,
	CommandReinstate: domainagg.ActionReinstate,
	CommandRevoke:    domainagg.ActionRevoke,
	CommandModify:    domainagg.ActionModify,
}

func (t CommandType) Valid() bool {
	if t == CommandAssign {
		return true
	}
	_, ok := commandActions[t]
	return ok
}

// FallbackPolicy decides what an assignment does when eligibility cannot be
// checked.
type FallbackPolicy string

const (
	FallbackPending     FallbackPolicy = "pending"
	FallbackReject      FallbackPolicy = "reject"
	FallbackAssumeValid FallbackPolicy = "assume_valid"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FallbackPending, nil
	case FallbackPending, FallbackReject, FallbackAssumeValid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown validation fallback policy %q", s)
	}
}

// Command is one externally triggered write. AggregateID is used when the
// payload does not name the benefit itself.
type Command struct {
	Type           CommandType
	AggregateID    uuid.UUID
	Payload        json.RawMessage
	IdempotencyKey string
	ActorID        string
}

// Result is the body of every command response.
type Result struct {
	ID       string `json:"id"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
	Version  int64  `json:"version,omitempty"`
}

// CommandResponse is what the transport writes back. Body is the exact JSON
// of Result, byte-identical on replay.
type CommandResponse struct {
	Status   int
	Body     []byte
	Result   Result
	Replayed bool
	Key      string
}

type BenefitCommandService interface {
	Handle(ctx context.Context, cmd Command) CommandResponse
}

type BenefitCommandDeps struct {
	Aggregate   domainagg.BenefitAggregate
	Benefits    repos.BenefitRepo
	Idempotency IdempotencyService
	Eligibility EligibilityChecker
	Notifier    Notifier
	Metrics     *observability.Metrics
	Policy      FallbackPolicy
	Now         func() time.Time
}

type benefitCommandService struct {
	log     *logger.Logger
	deps    BenefitCommandDeps
	locks   *keylock.Locker
	tracer  trace.Tracer
	now     func() time.Time
	metrics *observability.Metrics
}

func NewBenefitCommandService(log *logger.Logger, deps BenefitCommandDeps) BenefitCommandService {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Policy == "" {
		deps.Policy = FallbackPending
	}
	s := &benefitCommandService{
		log:     log.With("service", "BenefitCommandService"),
		deps:    deps,
		locks:   keylock.New(),
		tracer:  observability.Tracer("commands"),
		now:     now,
		metrics: deps.Metrics,
	}
	if deps.Policy == FallbackAssumeValid {
		s.log.Warn("validation fallback assumes eligibility when the validation service is unavailable")
	}
	return s
}

// commandRun carries per-request state through the pipeline.
type commandRun struct {
	cmd         Command
	key         string
	fingerprint string
	aggregateID string
}

func (s *benefitCommandService) Handle(ctx context.Context, cmd Command) CommandResponse {
	// The outcome is recorded even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "command "+string(cmd.Type))
	defer span.End()

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("command.idempotency_key", key),
	)

	resp := s.handle(ctx, cmd, key)
	resp.Key = key
	span.SetAttributes(
		attribute.Int("command.status", resp.Status),
		attribute.Bool("command.replayed", resp.Replayed),
	)
	if resp.Status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Result.Message)
	}
	s.metrics.IncCommand(string(cmd.Type), outcomeLabel(resp))
	return resp
}

func (s *benefitCommandService) handle(ctx context.Context, cmd Command, key string) CommandResponse {
	if !cmd.Type.Valid() {
		return s.respond(http.StatusBadRequest, Result{
			ID: key, Message: "unknown command type " + strconv.Quote(string(cmd.Type)), Code: string(domainagg.CodeValidation),
		})
	}
	target := ""
	if cmd.AggregateID != uuid.Nil {
		target = cmd.AggregateID.String()
	}
	fp, err := Fingerprint(string(cmd.Type), target, cmd.Payload)
	if err != nil {
		return s.respond(http.StatusBadRequest, Result{ID: key, Message: err.Error(), Code: string(domainagg.CodeValidation)})
	}

	check, err := s.deps.Idempotency.Begin(ctx, key, fp)
	if err != nil {
		return s.internal(key, "idempotency lookup", err)
	}
	defer check.Release()
	switch check.Decision {
	case DecisionReturnCached:
		return replay(check.Cached)
	case DecisionConflict:
		return s.idempotencyConflict(key)
	}

	run := &commandRun{cmd: cmd, key: key, fingerprint: fp, aggregateID: key}
	if cmd.Type == CommandAssign {
		return s.assign(ctx, run)
	}
	return s.transition(ctx, run, commandActions[cmd.Type])
}

type assignPayload struct {
	SubjectID   string      `json:"subjectId"`
	BenefitType string      `json:"benefitType"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
}

type targetPayload struct {
	BenefitID     string      `json:"benefitId"`
	Reason        string      `json:"reason"`
	EffectiveDate string      `json:"effectiveDate"`
	Amount        json.Number `json:"amount"`
	EndDate       *string     `json:"endDate"`
	Description   *string     `json:"description"`
}

func (s *benefitCommandService) assign(ctx context.Context, run *commandRun) CommandResponse {
	const op = "command.assign"
	var p assignPayload
	if err := decodePayload(run.cmd.Payload, &p); err != nil {
		return s.fail(ctx, run, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil))
	}
	in, err := p.input(op)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	in.ActorID = run.cmd.ActorID

	release, err := s.locks.Lock(ctx, "assign:"+in.SubjectID+":"+in.BenefitType)
	if err != nil {
		return s.internal(run.key, "acquire assignment lock", err)
	}
	defer release()

	message := "benefit assigned"
	degraded := false
	elig := s.deps.Eligibility.Check(ctx, in.SubjectID, in.BenefitType)
	switch {
	case elig.Degraded:
		switch s.deps.Policy {
		case FallbackReject:
			return s.dependencyUnavailable(run, elig)
		case FallbackAssumeValid:
			in.Verification = benefits.VerificationAssumed
			message = "benefit assigned; eligibility assumed while validation is unavailable"
		default:
			in.Verification = benefits.VerificationPending
			message = "benefit assigned pending verification"
		}
		degraded = true
		s.log.Warn("assigning without eligibility check", "subject_id", in.SubjectID, "benefit_type", in.BenefitType, "reason", elig.Reason, "policy", string(s.deps.Policy))
	case !elig.Eligible:
		return s.fail(ctx, run, domainagg.NewError(domainagg.CodePreconditionFailed, op, notEligibleMessage(elig), nil))
	default:
		in.Verification = benefits.VerificationVerified
	}

	var body []byte
	in.Now = s.now()
	in.Outcome = s.deps.Idempotency.Outcome(run.key, run.fingerprint, s.renderSuccess(http.StatusCreated, message, degraded, &body))
	res, err := s.deps.Aggregate.Assign(ctx, in)
	if err != nil {
		run.aggregateID = in.BenefitID.String()
		return s.writeFailed(ctx, run, err)
	}
	s.notify(res, message)
	return decoded(http.StatusCreated, body)
}

func (p assignPayload) input(op string) (domainagg.AssignBenefitInput, error) {
	in := domainagg.AssignBenefitInput{
		BenefitID:   uuid.New(),
		SubjectID:   strings.TrimSpace(p.SubjectID),
		BenefitType: strings.ToUpper(strings.TrimSpace(p.BenefitType)),
		Description: p.Description,
	}
	if in.SubjectID == "" {
		return in, domainagg.NewError(domainagg.CodeValidation, op, "subjectId is required", nil)
	}
	if !benefits.Type(in.BenefitType).Valid() {
		return in, domainagg.NewError(domainagg.CodeValidation, op, "unknown benefit type "+strconv.Quote(p.BenefitType), nil)
	}
	start, err := parseDate(op, "startDate", p.StartDate)
	if err != nil {
		return in, err
	}
	if start == nil {
		return in, domainagg.NewError(domainagg.CodeValidation, op, "startDate is required", nil)
	}
	in.StartDate = *start
	if in.EndDate, err = parseDate(op, "endDate", p.EndDate); err != nil {
		return in, err
	}
	if in.AmountCents, err = parseAmount(op, p.Amount); err != nil {
		return in, err
	}
	return in, nil
}

func (s *benefitCommandService) transition(ctx context.Context, run *commandRun, action domainagg.BenefitAction) CommandResponse {
	op := "command." + string(action)
	var p targetPayload
	if err := decodePayload(run.cmd.Payload, &p); err != nil {
		return s.fail(ctx, run, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil))
	}
	id, err := targetID(op, p.BenefitID, run.cmd.AggregateID)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.aggregateID = id.String()

	in := domainagg.TransitionBenefitInput{
		BenefitID: id,
		Action:    action,
		Reason:    p.Reason,
		ActorID:   run.cmd.ActorID,
	}
	switch action {
	case domainagg.ActionRevoke:
		if in.EffectiveDate, err = parseDate(op, "effectiveDate", p.EffectiveDate); err != nil {
			return s.fail(ctx, run, err)
		}
	case domainagg.ActionModify:
		if in.AmountCents, err = parseAmount(op, p.Amount); err != nil {
			return s.fail(ctx, run, err)
		}
		if p.EndDate != nil {
			if in.EndDate, err = parseDate(op, "endDate", *p.EndDate); err != nil {
				return s.fail(ctx, run, err)
			}
		}
		in.Description = p.Description
	}

	release, err := s.locks.Lock(ctx, "benefit:"+id.String())
	if err != nil {
		return s.internal(run.key, "acquire benefit lock", err)
	}
	defer release()

	if action == domainagg.ActionApprove {
		if resp, stop := s.checkApproval(ctx, run, id); stop {
			return resp
		}
	}

	message := transitionMessages[action]
	var body []byte
	in.Now = s.now()
	in.Outcome = s.deps.Idempotency.Outcome(run.key, run.fingerprint, s.renderSuccess(http.StatusOK, message, false, &body))
	res, err := s.deps.Aggregate.Transition(ctx, in)
	if err != nil {
		return s.writeFailed(ctx, run, err)
	}
	s.notify(res, message)
	return decoded(http.StatusOK, body)
}

var transitionMessages = map[domainagg.BenefitAction]string{
	domainagg.ActionApprove:   "benefit approved",
	domainagg.ActionSuspend:   "benefit suspended",
	domainagg.ActionReinstate: "benefit reinstated",
	domainagg.ActionRevoke:    "benefit revoked",
	domainagg.ActionModify:    "benefit modified",
}

// checkApproval confirms eligibility for a pending grant. Approval has no
// safe fallback, so a degraded answer is a 503.
func (s *benefitCommandService) checkApproval(ctx context.Context, run *commandRun, id uuid.UUID) (CommandResponse, bool) {
	const op = "command.approve"
	b, err := s.deps.Benefits.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return s.internal(run.key, "load benefit", err), true
	}
	if b == nil {
		return s.fail(ctx, run, domainagg.NewError(domainagg.CodeNotFound, op, "benefit not found", nil)), true
	}
	if b.State != benefits.StatePending {
		// Let the state machine produce the conflict.
		return CommandResponse{}, false
	}
	elig := s.deps.Eligibility.Check(ctx, b.SubjectID, string(b.Type))
	if elig.Degraded {
		return s.dependencyUnavailable(run, elig), true
	}
	if !elig.Eligible {
		return s.fail(ctx, run, domainagg.NewError(domainagg.CodePreconditionFailed, op, notEligibleMessage(elig), nil)), true
	}
	return CommandResponse{}, false
}

func (s *benefitCommandService) renderSuccess(status int, message string, degraded bool, out *[]byte) func(domainagg.BenefitWriteResult) (int, []byte, error) {
	return func(res domainagg.BenefitWriteResult) (int, []byte, error) {
		body, err := json.Marshal(Result{
			ID:       res.BenefitID.String(),
			Success:  true,
			Message:  message,
			Degraded: degraded,
			State:    res.State,
			Version:  res.Version,
		})
		if err != nil {
			return 0, nil, err
		}
		*out = body
		return status, body, nil
	}
}

// writeFailed maps an aggregate error. A lost race on the idempotency key
// replays the winner's answer.
func (s *benefitCommandService) writeFailed(ctx context.Context, run *commandRun, err error) CommandResponse {
	if errors.Is(err, domainagg.ErrOutcomeAlreadyRecorded) {
		decision, cached, lerr := s.deps.Idempotency.Lookup(ctx, run.key, run.fingerprint)
		if lerr != nil {
			return s.internal(run.key, "idempotency lookup after lost race", lerr)
		}
		switch decision {
		case DecisionReturnCached:
			return replay(cached)
		case DecisionConflict:
			return s.idempotencyConflict(run.key)
		}
		return s.respond(http.StatusConflict, Result{
			ID: run.aggregateID, Message: "concurrent request with the same idempotency key", Code: string(domainagg.CodeConflict),
		})
	}
	return s.fail(ctx, run, err)
}

// fail turns a business failure into a Result. Terminal failures are
// recorded so a retry replays them; retryable and internal ones are not.
func (s *benefitCommandService) fail(ctx context.Context, run *commandRun, err error) CommandResponse {
	code := domainagg.CodeOf(err)
	if code == "" {
		code = domainagg.CodeInternal
	}
	status := StatusForCode(code)
	result := Result{ID: run.aggregateID, Message: domainagg.MessageOf(err), Code: string(code)}
	if status >= http.StatusInternalServerError {
		s.log.Error("command failed", "command", string(run.cmd.Type), "idempotency_key", run.key, "error", err)
		if code == domainagg.CodeInternal {
			result.Message = "internal error"
		}
		return s.respond(status, result)
	}
	if !code.Terminal() {
		return s.respond(status, result)
	}
	body, merr := json.Marshal(result)
	if merr != nil {
		return s.internal(run.key, "encode result", merr)
	}
	if cerr := s.deps.Idempotency.Commit(dbctx.Context{Ctx: ctx}, run.key, run.fingerprint, status, body); cerr != nil {
		if domainagg.IsCode(cerr, domainagg.CodeIdempotency) {
			return s.idempotencyConflict(run.key)
		}
		s.log.Warn("terminal failure not recorded", "idempotency_key", run.key, "error", cerr)
	}
	return CommandResponse{Status: status, Body: body, Result: result}
}

func (s *benefitCommandService) dependencyUnavailable(run *commandRun, elig Eligibility) CommandResponse {
	return s.respond(http.StatusServiceUnavailable, Result{
		ID:       run.aggregateID,
		Message:  "eligibility cannot be verified: " + elig.Message,
		Degraded: true,
		Code:     string(domainagg.CodeDependency),
	})
}

func (s *benefitCommandService) idempotencyConflict(key string) CommandResponse {
	return s.respond(http.StatusUnprocessableEntity, Result{
		ID:      key,
		Message: "idempotency key reused with a different payload",
		Code:    string(domainagg.CodeIdempotency),
	})
}

func (s *benefitCommandService) internal(key, what string, err error) CommandResponse {
	s.log.Error("command pipeline error", "step", what, "idempotency_key", key, "error", err)
	return s.respond(http.StatusInternalServerError, Result{ID: key, Message: "internal error", Code: string(domainagg.CodeInternal)})
}

func (s *benefitCommandService) respond(status int, r Result) CommandResponse {
	body, err := json.Marshal(r)
	if err != nil {
		s.log.Error("encode command result", "error", err)
		body = []byte(`{"success":false,"message":"internal error","code":"internal"}`)
	}
	return CommandResponse{Status: status, Body: body, Result: r}
}

func (s *benefitCommandService) notify(res domainagg.BenefitWriteResult, message string) {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.Notify(notification.Notice{
		SubjectID: res.SubjectID,
		BenefitID: res.BenefitID.String(),
		EventType: res.EventType,
		Message:   message,
	})
}

func replay(c *CachedResponse) CommandResponse {
	resp := decoded(c.StatusCode, c.Body)
	resp.Replayed = true
	return resp
}

func decoded(status int, body []byte) CommandResponse {
	resp := CommandResponse{Status: status, Body: body}
	_ = json.Unmarshal(body, &resp.Result)
	return resp
}

// StatusForCode maps an aggregate error code to its HTTP status.
func StatusForCode(code domainagg.ErrorCode) int {
	switch code {
	case domainagg.CodeValidation:
		return http.StatusBadRequest
	case domainagg.CodeNotFound:
		return http.StatusNotFound
	case domainagg.CodeConflict, domainagg.CodeStateConflict, domainagg.CodePreconditionFailed, domainagg.CodeInvariantViolation:
		return http.StatusConflict
	case domainagg.CodeIdempotency:
		return http.StatusUnprocessableEntity
	case domainagg.CodeDependency, domainagg.CodeRetryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func outcomeLabel(r CommandResponse) string {
	switch {
	case r.Replayed:
		return "replayed"
	case r.Result.Success && r.Result.Degraded:
		return "degraded"
	case r.Result.Success:
		return "success"
	case r.Status < http.StatusInternalServerError:
		return "rejected"
	default:
		return "failed"
	}
}

func notEligibleMessage(e Eligibility) string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return "subject is not eligible: " + msg
	}
	return "subject is not eligible for this benefit"
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("payload is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func targetID(op, raw string, fallback uuid.UUID) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback == uuid.Nil {
			return uuid.Nil, domainagg.NewError(domainagg.CodeValidation, op, "benefitId is required", nil)
		}
		return fallback, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domainagg.NewError(domainagg.CodeValidation, op, "benefitId is not a valid id", err)
	}
	if fallback != uuid.Nil && fallback != id {
		return uuid.Nil, domainagg.NewError(domainagg.CodeValidation, op, "benefitId does not match the addressed benefit", nil)
	}
	return id, nil
}

func parseDate(op, field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(events.DateLayout, raw)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, field+" must be a YYYY-MM-DD date", err)
	}
	return &t, nil
}

// parseAmount converts a decimal amount to cents. More than two decimals is
// rejected rather than rounded.
func parseAmount(op string, n json.Number) (*int64, error) {
	raw := strings.TrimSpace(string(n))
	if raw == "" {
		return nil, nil
	}
	invalid := domainagg.NewError(domainagg.CodeValidation, op, "amount must be a decimal with at most two fractional digits", nil)
	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" || len(frac) > 2 || strings.ContainsAny(raw, "eE+") {
		return nil, invalid
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return nil, invalid
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || units > (1<<62)/100 {
		return nil, invalid
	}
	total := units*100 + cents
	if neg {
		total = -total
	}
	return &total, nil
}
