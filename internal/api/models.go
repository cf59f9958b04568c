package api

import (
	"time"

	"github.com/gregoryb/recordscrape/internal/scrape"
	"github.com/gregoryb/recordscrape/internal/task"
)

// AddressInput is the address portion of a scrape request.
type AddressInput struct {
	Number    string `json:"number"`
	Street    string `json:"street"    validate:"required"`
	Direction string `json:"direction"`
}

// ScrapeRequest is the submit-task request body.
type ScrapeRequest struct {
	Address    AddressInput `json:"address"`
	Pages      []string     `json:"pages"       validate:"required,min=1"`
	MaxResults int          `json:"max_results" validate:"required,gt=0"`
}

// ToPayload converts the request into the scraper's payload, applying
// the page whitelist and the max-results clamp.
func (req *ScrapeRequest) ToPayload() (*scrape.Request, error) {
	pages := make([]scrape.Page, len(req.Pages))
	for i, p := range req.Pages {
		pages[i] = scrape.Page(p)
	}
	payload := &scrape.Request{
		Address: scrape.Address{
			Number:    req.Address.Number,
			Street:    req.Address.Street,
			Direction: req.Address.Direction,
		},
		Pages:      pages,
		MaxResults: req.MaxResults,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// TaskResponse is the representation of a task returned by every task
// endpoint. Result is populated only where the endpoint promises it.
type TaskResponse struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// TaskListResponse wraps the task listing.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// PoolStatsResponse reports browser pool occupancy.
type PoolStatsResponse struct {
	Total int `json:"total"`
	Busy  int `json:"busy"`
	Idle  int `json:"idle"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status string `json:"status"`
}

func toTaskResponse(rec task.Record, includeResult bool) TaskResponse {
	resp := TaskResponse{
		TaskID:      rec.ID.String(),
		Status:      string(rec.Status),
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Error:       rec.ErrorMessage,
		ErrorKind:   string(rec.ErrorKind),
	}
	if includeResult {
		resp.Result = rec.Result
	}
	return resp
}
