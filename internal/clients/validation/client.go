package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/benefits-backend/internal/clients/httpjson"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// Client asks the external validation service whether a subject is eligible
// for a benefit type.
type Client interface {
	CheckEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error)
}

type EligibilityRequest struct {
	SubjectID   string `json:"subjectId"`
	BenefitType string `json:"benefitType"`
}

type EligibilityResult struct {
	Valid   bool   `json:"valid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Config struct {
	BaseURL string
	// Timeout caps the underlying transport; per-call deadlines come from the
	// caller's context.
	Timeout time.Duration
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing VALIDATION_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &client{
		log:  log.With("client", "ValidationClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) CheckEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error) {
	var out EligibilityResult
	if err := httpjson.Do(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/api/validations/eligibility", req, &out); err != nil {
		return EligibilityResult{}, err
	}
	c.log.Debug("eligibility checked", "subject_id", req.SubjectID, "benefit_type", req.BenefitType, "valid", out.Valid, "status", out.Status)
	return out, nil
}
