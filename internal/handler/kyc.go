package handler

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/finvet-io/finvet/internal/context"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/helper"
	"github.com/finvet-io/finvet/internal/request"
	"github.com/finvet-io/finvet/internal/response"
	"github.com/finvet-io/finvet/internal/sumsub"
)

const levelsCacheKey = "sumsub:levels"

const levelsCacheTTL = 10 * time.Minute

// KycStore is the slice of the database this handler needs.
type KycStore interface {
	GetUser(id string) (*database.User, bool, error)
	StartUserVerification(userID, applicantID string) error
	CreateActivityLog(log *database.ActivityLog) (*database.ActivityLog, error)
}

// VerificationClient is implemented by sumsub.Client.
type VerificationClient interface {
	GetOrCreateApplicant(ctx stdcontext.Context, externalUserID string, info sumsub.ApplicantInfo, levelName string) (*sumsub.Applicant, error)
	GetApplicant(ctx stdcontext.Context, applicantID string) (json.RawMessage, error)
	GenerateAccessToken(ctx stdcontext.Context, applicantID, levelName string) (string, error)
	GetLevels(ctx stdcontext.Context) (json.RawMessage, error)
	DefaultLevel() string
}

// LevelsCache is implemented by cache.Cache.
type LevelsCache interface {
	Get(key string) (string, error)
	Set(key string, value string, expiration time.Duration) error
}

type KycHandler struct {
	Store        KycStore
	Verification VerificationClient
	Cache        LevelsCache

	ErrHandler *errHandler.ErrorHandler
	Helper     *helper.HelperRepository
}

func NewKycHandler(handler *KycHandler) *KycHandler {
	return &KycHandler{
		Store:        handler.Store,
		Verification: handler.Verification,
		Cache:        handler.Cache,
		ErrHandler:   handler.ErrHandler,
		Helper:       handler.Helper,
	}
}

// HandleStartVerification provisions a provider-side applicant for the
// authenticated user and moves their account into pending. Creation is
// idempotent under retry: a provider-side "already exists" conflict resolves
// to the existing applicant instead of erroring.
func (h *KycHandler) HandleStartVerification(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	if user == nil {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	if user.KycStatus == database.KycStatusPending || user.KycStatus == database.KycStatusApproved {
		h.ErrHandler.BadRequest(w, r, errors.New("verification already in progress or completed"))
		return
	}

	externalUserID := fmt.Sprintf("user-%s-%d", user.ID, time.Now().Unix())

	applicant, err := h.Verification.GetOrCreateApplicant(r.Context(), externalUserID, sumsub.ApplicantInfo{
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Phone:       user.PhoneNumber,
		AccountType: user.AccountType,
	}, h.Verification.DefaultLevel())

	if err != nil {
		h.respondVerificationError(w, r, err)
		return
	}

	// The applicant now exists provider-side regardless of what happens
	// below, so a failed local write is surfaced and the user retries; the
	// retry resolves to the same applicant.
	err = h.Store.StartUserVerification(user.ID, applicant.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	h.Helper.BackgroundTask(r, func() error {
		_, err := h.Store.CreateActivityLog(&database.ActivityLog{
			UserID:      user.ID,
			Entity:      database.ActivityLogVerificationEntity,
			EntityId:    applicant.ID,
			Description: database.ActivityLogVerificationStartedDescription,
		})

		if err != nil {
			log.Printf("Error logging verification start: %v", err)
			return err
		}

		return nil
	})

	data := map[string]any{
		"applicant_id": applicant.ID,
		"existing":     applicant.Existing,
		"status":       database.KycStatusPending,
	}

	message := "Verification started"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleGenerateAccessToken mints a fresh SDK token for the client-side
// verification widget. Tokens are short-lived and never cached server-side;
// the widget calls back here whenever its token expires.
func (h *KycHandler) HandleGenerateAccessToken(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	if user == nil {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	if !user.KycApplicantID.Valid || user.KycApplicantID.String == "" {
		h.ErrHandler.BadRequest(w, r, errors.New("verification has not been started"))
		return
	}

	var input struct {
		LevelName string `json:"level_name"`
	}

	// body is optional; the configured default level applies when omitted
	if r.ContentLength > 0 {
		err := request.DecodeJSON(w, r, &input)
		if err != nil {
			h.ErrHandler.BadRequest(w, r, err)
			return
		}
	}

	token, err := h.Verification.GenerateAccessToken(r.Context(), user.KycApplicantID.String, input.LevelName)
	if err != nil {
		h.respondVerificationError(w, r, err)
		return
	}

	data := map[string]string{
		"token": token,
	}

	err = response.JSONOkResponse(w, data, "", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleVerificationStatus reports the locally projected status. With
// ?refresh=true the provider's current applicant representation is attached,
// which helps support debug a stuck review.
func (h *KycHandler) HandleVerificationStatus(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	if user == nil {
		h.ErrHandler.AuthenticationRequired(w, r)
		return
	}

	// re-read rather than trusting the middleware copy; a webhook may have
	// landed since the token was issued
	current, found, err := h.Store.GetUser(user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.ErrHandler.NotFound(w, r)
		return
	}

	data := map[string]any{
		"verification": newVerificationResponse(current),
	}

	if r.URL.Query().Get("refresh") == "true" && current.KycApplicantID.Valid {
		applicant, err := h.Verification.GetApplicant(r.Context(), current.KycApplicantID.String)
		if err != nil {
			h.respondVerificationError(w, r, err)
			return
		}
		data["applicant"] = applicant
	}

	message := "Data retrieved successfully"
	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleVerificationLevels proxies the provider's level list. The list is a
// configuration surface that rarely changes, so it's served out of Redis.
func (h *KycHandler) HandleVerificationLevels(w http.ResponseWriter, r *http.Request) {
	if cached, err := h.Cache.Get(levelsCacheKey); err == nil && cached != "" {
		err = response.JSONOkResponse(w, json.RawMessage(cached), "", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	levels, err := h.Verification.GetLevels(r.Context())
	if err != nil {
		h.respondVerificationError(w, r, err)
		return
	}

	if err := h.Cache.Set(levelsCacheKey, string(levels), levelsCacheTTL); err != nil {
		log.Printf("Error caching verification levels: %v", err)
	}

	err = response.JSONOkResponse(w, levels, "", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// respondVerificationError turns provider/configuration failures into the
// human-readable messages interactive flows need.
func (h *KycHandler) respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sumsub.ErrNotConfigured) {
		h.ErrHandler.ReportServerError(r, err)

		message := "Verification service is not configured"
		respErr := response.JSONErrorResponse(w, nil, message, http.StatusInternalServerError, nil)
		if respErr != nil {
			h.ErrHandler.ServerError(w, r, respErr)
		}
		return
	}

	var providerErr *sumsub.ProviderError
	if errors.As(err, &providerErr) {
		message := fmt.Sprintf("Verification provider error: %s", providerErr.Description)
		respErr := response.JSONErrorResponse(w, nil, message, http.StatusBadGateway, nil)
		if respErr != nil {
			h.ErrHandler.ServerError(w, r, respErr)
		}
		return
	}

	h.ErrHandler.ServerError(w, r, err)
}
