package handler

import (
	"github.com/finvet-io/finvet/internal/config"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/file"
	"github.com/finvet-io/finvet/internal/helper"
	"github.com/finvet-io/finvet/internal/smtp"
)

// RouteHandler carries the shared services for account-facing routes.
// Verification routes have their own handlers (see kyc.go and webhook.go)
// so they can be exercised against fakes.
type RouteHandler struct {
	DB           *database.DB
	ErrHandler   *errHandler.ErrorHandler
	Helper       *helper.HelperRepository
	Mailer       smtp.MailerInterface
	Config       *config.Config
	FileUploader *file.FileUploader
}

func NewRouteHandler(handler *RouteHandler) *RouteHandler {
	return &RouteHandler{
		DB:           handler.DB,
		ErrHandler:   handler.ErrHandler,
		Helper:       handler.Helper,
		Mailer:       handler.Mailer,
		Config:       handler.Config,
		FileUploader: handler.FileUploader,
	}
}
