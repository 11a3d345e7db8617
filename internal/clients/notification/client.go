package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/benefits-backend/internal/clients/httpjson"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// Client delivers benefit lifecycle notices to the notification service.
type Client interface {
	Send(ctx context.Context, n Notice) (Receipt, error)
}

type Notice struct {
	SubjectID string `json:"subjectId"`
	BenefitID string `json:"benefitId"`
	EventType string `json:"eventType"`
	Message   string `json:"message"`
}

type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Config struct {
	BaseURL string
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
		return nil, fmt.Errorf("missing NOTIFICATION_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &client{
		log:  log.With("client", "NotificationClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Send(ctx context.Context, n Notice) (Receipt, error) {
	var out Receipt
	if err := httpjson.Do(ctx, c.http, http.MethodPost, c.cfg.BaseURL+"/api/notifications", n, &out); err != nil {
		return Receipt{}, err
	}
	return out, nil
}
