package http

import (
	"time"

	"github.com/vadimbarashkov/tinylink/internal/entity"
	"github.com/vadimbarashkov/tinylink/pkg/response"
)

// createLinkRequest is the body of POST /api/links. Code is optional.
type createLinkRequest struct {
	TargetURL string `json:"target_url" validate:"required,http_url"`
	Code      string `json:"code" validate:"omitempty,shortcode"`
}

type linkResponse struct {
	Code        string     `json:"code"`
	TargetURL   string     `json:"target_url"`
	TotalClicks int64      `json:"total_clicks"`
	LastClicked *time.Time `json:"last_clicked"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toLinkResponse(link *entity.Link) linkResponse {
	return linkResponse{
		Code:        link.Code,
		TargetURL:   link.TargetURL,
		TotalClicks: link.TotalClicks,
		LastClicked: link.LastClicked,
		CreatedAt:   link.CreatedAt,
	}
}

func toLinkResponses(links []entity.Link) []linkResponse {
	resp := make([]linkResponse, 0, len(links))
	for i := range links {
		resp = append(resp, toLinkResponse(&links[i]))
	}
	return resp
}

type deleteResponse struct {
	Success bool `json:"success"`
}

const (
	healthStatusOK    = "ok"
	healthStatusError = "error"

	databaseConnected        = "connected"
	databaseConnectionFailed = "connection_failed"
)

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Database      string    `json:"database"`
}

var (
	invalidInputResponse        = response.Error("invalid target url or code")
	codeConflictResponse        = response.Error("code already in use")
	linkNotFoundResponse        = response.Error("link not found")
	generationExhaustedResponse = response.Error("could not allocate a short code, try again")
	unavailableResponse         = response.Error("service temporarily unavailable")
)
