package service

import (
	"context"

	"github.com/mssola/useragent"

	"flock/pkg/requestcontext"
)

const (
	SourceManual = "manual"
	SourceMobile = "mobile"
	SourceWeb    = "web"
)

// checkInSource keeps an explicit source and otherwise derives one from the
// device that sent the request.
func checkInSource(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return SourceManual
	}
	if useragent.New(raw).Mobile() {
		return SourceMobile
	}
	return SourceWeb
}
