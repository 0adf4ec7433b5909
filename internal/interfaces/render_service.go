package interfaces

import (
	"context"
	"time"
)

// RenderStatus classifies the outcome of a browser render
type RenderStatus string

const (
	RenderStatusOK      RenderStatus = "ok"
	RenderStatusPartial RenderStatus = "partial"
	RenderStatusTimeout RenderStatus = "timeout"
	RenderStatusError   RenderStatus = "error"
)

// RenderRequest describes a page render
type RenderRequest struct {
	URL             string
	WaitForSelector string
	Timeout         time.Duration
}

// RenderResult carries the rendered page. A selector timeout on a page that
// otherwise loaded returns status partial together with the HTML captured so
// far, so callers can still attempt extraction.
type RenderResult struct {
	FinalURL string
	Status   RenderStatus
	HTML     string
	Errors   []string
}

// RenderService renders JavaScript-heavy pages in a headless browser
type RenderService interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
	Shutdown(ctx context.Context) error
}
