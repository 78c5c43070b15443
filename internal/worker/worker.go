package worker

import (
	"context"

	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/helper"
	"github.com/finvet-io/finvet/internal/smtp"
	"github.com/finvet-io/finvet/internal/stream"
)

type Worker struct {
	KafkaStream *stream.KafkaStream
	DB          *database.DB
	Ctx         context.Context
	Helper      *helper.HelperRepository
	Mailer      smtp.MailerInterface
}

const (
	// kycStatusGroupID is used by workers reacting to verification status
	// transitions projected from provider webhooks.
	kycStatusGroupID = "kyc-status-group"
)
