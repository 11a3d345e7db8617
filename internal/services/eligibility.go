package services

import (
	"context"

	"github.com/yungbote/benefits-backend/internal/clients/validation"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
	"github.com/yungbote/benefits-backend/internal/platform/resilience"
)

const DependencyValidation = "validation"

// Eligibility is the guarded answer of the validation service. Degraded
// means the service could not be consulted and Eligible is meaningless.
type Eligibility struct {
	Eligible bool
	Status   string
	Message  string
	Degraded bool
	Reason   string
}

type EligibilityChecker interface {
	Check(ctx context.Context, subjectID, benefitType string) Eligibility
}

type eligibilityChecker struct {
	log      *logger.Logger
	client   validation.Client
	invoker  *resilience.Invoker
	fallback func(validation.EligibilityRequest) validation.EligibilityResult
}

// NewEligibilityChecker guards client with the invoker. A nil client yields
// a checker that always reports a degraded answer.
func NewEligibilityChecker(log *logger.Logger, client validation.Client, invoker *resilience.Invoker) EligibilityChecker {
	return &eligibilityChecker{
		log:      log.With("service", "EligibilityChecker"),
		client:   client,
		invoker:  invoker,
		fallback: unknownEligibility,
	}
}

func unknownEligibility(validation.EligibilityRequest) validation.EligibilityResult {
	return validation.EligibilityResult{Status: "UNKNOWN", Message: "validation service unavailable"}
}

func (c *eligibilityChecker) Check(ctx context.Context, subjectID, benefitType string) Eligibility {
	if c.client == nil {
		return Eligibility{Degraded: true, Reason: "not_configured", Message: "validation service not configured"}
	}
	req := validation.EligibilityRequest{SubjectID: subjectID, BenefitType: benefitType}
	out, err := resilience.Call(ctx, c.invoker, DependencyValidation, req, c.client.CheckEligibility, c.fallback)
	if err != nil {
		// Never read an unanswered check as "not eligible".
		c.log.Warn("eligibility check failed", "subject_id", subjectID, "benefit_type", benefitType, "error", err)
		reason := out.Reason
		if reason == "" {
			reason = resilience.ReasonRejected
		}
		return Eligibility{Status: "UNKNOWN", Message: "validation service unavailable", Degraded: true, Reason: reason}
	}
	return Eligibility{
		Eligible: out.Value.Valid,
		Status:   out.Value.Status,
		Message:  out.Value.Message,
		Degraded: out.Degraded,
		Reason:   out.Reason,
	}
}
