package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/response"
	"github.com/finvet-io/finvet/internal/sumsub"
)

// KycStatusTopic carries one message per projected status transition, so
// downstream consumers (notification worker) react without being in the
// webhook's critical path.
const KycStatusTopic = "kyc.status"

type KycStatusMessage struct {
	UserID          string `json:"user_id"`
	ApplicantID     string `json:"applicant_id"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// WebhookStore is the slice of the database the webhook pipeline writes.
type WebhookStore interface {
	GetUserByApplicantID(applicantID string) (*database.User, bool, error)
	UpdateUserKycStatus(userID, status, rejectionReason string) error
}

// WebhookVerifier is implemented by sumsub.Signer.
type WebhookVerifier interface {
	VerifyWebhook(rawBody []byte, signature string) bool
}

// StatusPublisher is implemented by stream.KafkaStream.
type StatusPublisher interface {
	ProduceMessage(topic, message string) error
}

type WebhookHandler struct {
	Store    WebhookStore
	Verifier WebhookVerifier
	Stream   StatusPublisher

	ErrHandler *errHandler.ErrorHandler
	Logger     *slog.Logger
}

func NewWebhookHandler(handler *WebhookHandler) *WebhookHandler {
	return &WebhookHandler{
		Store:      handler.Store,
		Verifier:   handler.Verifier,
		Stream:     handler.Stream,
		ErrHandler: handler.ErrHandler,
		Logger:     handler.Logger,
	}
}

// HandleSumsubWebhook processes asynchronous review callbacks from the
// verification provider.
//
// The signature is checked over the raw bytes before anything is parsed; a
// bad digest gets a 403 and nothing else happens. Once the signature has
// passed, the response is 200 no matter what: the provider retries non-2xx
// responses indefinitely, and every event is re-derivable from provider
// state, so a local bookkeeping failure must never start a retry storm.
// Those failures are reported through the error handler instead.
func (h *WebhookHandler) HandleSumsubWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	signature := r.Header.Get(sumsub.WebhookSignatureHeader)

	if !h.Verifier.VerifyWebhook(rawBody, signature) {
		h.Logger.Warn("webhook rejected: invalid signature", "path", r.URL.Path)
		h.ErrHandler.InvalidWebhookSignature(w, r)
		return
	}

	var event sumsub.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		// authenticated but malformed; acknowledge so the provider moves on
		h.ErrHandler.ReportServerError(r, err)
		h.acknowledge(w, r)
		return
	}

	user, found, err := h.Store.GetUserByApplicantID(event.ApplicantID)
	if err != nil {
		h.ErrHandler.ReportServerError(r, err)
		h.acknowledge(w, r)
		return
	}

	if !found {
		// not a protocol error: we may receive events for applicants created
		// outside this system, or before our own projection landed
		h.Logger.Info("webhook for unknown applicant", "type", event.Type, "applicant_id", event.ApplicantID)
		h.acknowledge(w, r)
		return
	}

	status, rejectionReason, actionable := projectStatus(&event)
	if !actionable {
		h.Logger.Debug("informational webhook", "type", event.Type, "applicant_id", event.ApplicantID)
		h.acknowledge(w, r)
		return
	}

	err = h.Store.UpdateUserKycStatus(user.ID, status, rejectionReason)
	if err != nil {
		// swallowed at this boundary; the next event re-derives the state
		h.ErrHandler.ReportServerError(r, err)
		h.acknowledge(w, r)
		return
	}

	message, err := json.Marshal(KycStatusMessage{
		UserID:          user.ID,
		ApplicantID:     event.ApplicantID,
		Status:          status,
		RejectionReason: rejectionReason,
	})
	if err == nil {
		err = h.Stream.ProduceMessage(KycStatusTopic, string(message))
	}
	if err != nil {
		h.Logger.Error("failed to publish kyc status event", "error", err, "user_id", user.ID)
	}

	h.acknowledge(w, r)
}

// projectStatus maps a callback to the persisted verification state.
// Returns actionable=false for informational and unrecognized types; the
// provider may add new types at any time and they must not fail delivery.
func projectStatus(event *sumsub.WebhookEvent) (status, rejectionReason string, actionable bool) {
	switch event.Type {
	case sumsub.WebhookTypeApplicantReviewed:
		if event.ReviewStatus != sumsub.ReviewStatusCompleted {
			return "", "", false
		}

		if event.ReviewResult.ReviewAnswer == sumsub.ReviewAnswerGreen {
			return database.KycStatusApproved, "", true
		}

		reason := event.ReviewResult.ModerationComment
		if reason == "" {
			reason = "Verification was not successful"
		}
		return database.KycStatusRejected, reason, true

	case sumsub.WebhookTypeApplicantPending:
		return database.KycStatusPending, "", true

	case sumsub.WebhookTypeApplicantOnHold:
		reason := event.ErrorCode
		if reason == "" {
			reason = "Verification on hold"
		}
		return database.KycStatusOnHold, reason, true

	default:
		// applicantCreated, idDocReviewed, and anything we don't know yet
		return "", "", false
	}
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter, r *http.Request) {
	err := response.JSONOkResponse(w, nil, "Webhook received", nil)
	if err != nil {
		h.ErrHandler.ReportServerError(r, err)
	}
}
