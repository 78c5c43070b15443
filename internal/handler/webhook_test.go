package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/sumsub"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "webhook-secret"

var errProfileStoreDown = errors.New("profile store down")

type MockWebhookStore struct {
	mock.Mock
}

func (m *MockWebhookStore) GetUserByApplicantID(applicantID string) (*database.User, bool, error) {
	args := m.Called(applicantID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*database.User), args.Bool(1), args.Error(2)
}

func (m *MockWebhookStore) UpdateUserKycStatus(userID, status, rejectionReason string) error {
	args := m.Called(userID, status, rejectionReason)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) ProduceMessage(topic, message string) error {
	args := m.Called(topic, message)
	return args.Error(0)
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestWebhookHandler(store *MockWebhookStore, publisher *MockPublisher) *WebhookHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewWebhookHandler(&WebhookHandler{
		Store:      store,
		Verifier:   sumsub.NewSigner("test-app-token", testWebhookSecret),
		Stream:     publisher,
		ErrHandler: errHandler.New("", nil, logger),
		Logger:     logger,
	})
}

func postWebhook(t *testing.T, h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest("POST", "/webhooks/sumsub", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(sumsub.WebhookSignatureHeader, signature)

	rr := httptest.NewRecorder()
	h.HandleSumsubWebhook(rr, req)
	return rr
}

func TestWebhookApprovesOnGreenReview(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusApproved, "").Return(nil)
	publisher.On("ProduceMessage", KycStatusTopic, mock.Anything).Return(nil)

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123","reviewStatus":"completed","reviewResult":{"reviewAnswer":"GREEN"}}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertExpectations(t)

	publisher.AssertCalled(t, "ProduceMessage", KycStatusTopic, mock.MatchedBy(func(message string) bool {
		var statusMsg KycStatusMessage
		require.NoError(t, json.Unmarshal([]byte(message), &statusMsg))
		return statusMsg.Status == database.KycStatusApproved && statusMsg.ApplicantID == "abc123"
	}))
}

func TestWebhookRejectsWithModerationComment(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusRejected, "doc illegible").Return(nil)
	publisher.On("ProduceMessage", KycStatusTopic, mock.Anything).Return(nil)

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123","reviewStatus":"completed","reviewResult":{"reviewAnswer":"RED","moderationComment":"doc illegible"}}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertExpectations(t)
}

func TestWebhookRejectedReasonDefaultsWhenCommentMissing(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusRejected, "Verification was not successful").Return(nil)
	publisher.On("ProduceMessage", mock.Anything, mock.Anything).Return(nil)

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123","reviewStatus":"completed","reviewResult":{"reviewAnswer":"RED"}}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertExpectations(t)
}

func TestWebhookOnHoldUsesErrorCode(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusOnHold, "duplicate-document").Return(nil)
	publisher.On("ProduceMessage", mock.Anything, mock.Anything).Return(nil)

	body := []byte(`{"type":"applicantOnHold","applicantId":"abc123","errorCode":"duplicate-document"}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertExpectations(t)
}

func TestWebhookPendingEvent(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusPending, "").Return(nil)
	publisher.On("ProduceMessage", mock.Anything, mock.Anything).Return(nil)

	body := []byte(`{"type":"applicantPending","applicantId":"abc123"}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertExpectations(t)
}

func TestWebhookInvalidSignature(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123","reviewStatus":"completed","reviewResult":{"reviewAnswer":"GREEN"}}`)

	// signature computed over different content must be rejected
	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody([]byte(`{"something":"else"}`)))

	require.Equal(t, http.StatusForbidden, rr.Code)
	store.AssertNotCalled(t, "GetUserByApplicantID", mock.Anything)
	store.AssertNotCalled(t, "UpdateUserKycStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUnknownApplicantStillAcknowledged(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "ghost").Return(nil, false, nil)

	body := []byte(`{"type":"applicantReviewed","applicantId":"ghost","reviewStatus":"completed","reviewResult":{"reviewAnswer":"GREEN"}}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertNotCalled(t, "UpdateUserKycStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUnrecognizedTypeIgnored(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)

	body := []byte(`{"type":"somethingNew","applicantId":"abc123"}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	require.Equal(t, http.StatusOK, rr.Code)
	store.AssertNotCalled(t, "UpdateUserKycStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookInformationalTypesIgnored(t *testing.T) {
	for _, eventType := range []string{"applicantCreated", "idDocReviewed"} {
		store := new(MockWebhookStore)
		publisher := new(MockPublisher)

		store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)

		body := []byte(`{"type":"` + eventType + `","applicantId":"abc123"}`)

		rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

		require.Equal(t, http.StatusOK, rr.Code)
		store.AssertNotCalled(t, "UpdateUserKycStatus", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestWebhookPersistenceFailureStillAcknowledged(t *testing.T) {
	store := new(MockWebhookStore)
	publisher := new(MockPublisher)

	store.On("GetUserByApplicantID", "abc123").Return(&database.User{ID: "user-id-1"}, true, nil)
	store.On("UpdateUserKycStatus", "user-id-1", database.KycStatusApproved, "").Return(errProfileStoreDown)

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123","reviewStatus":"completed","reviewResult":{"reviewAnswer":"GREEN"}}`)

	rr := postWebhook(t, newTestWebhookHandler(store, publisher), body, signWebhookBody(body))

	// the provider must not be made to retry over our own bookkeeping failure
	require.Equal(t, http.StatusOK, rr.Code)
	publisher.AssertNotCalled(t, "ProduceMessage", mock.Anything, mock.Anything)
}
