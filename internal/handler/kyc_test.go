package handler

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/finvet-io/finvet/internal/context"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/helper"
	"github.com/finvet-io/finvet/internal/sumsub"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKycStore struct {
	mock.Mock
}

func (m *MockKycStore) GetUser(id string) (*database.User, bool, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*database.User), args.Bool(1), args.Error(2)
}

func (m *MockKycStore) StartUserVerification(userID, applicantID string) error {
	args := m.Called(userID, applicantID)
	return args.Error(0)
}

func (m *MockKycStore) CreateActivityLog(log *database.ActivityLog) (*database.ActivityLog, error) {
	args := m.Called(log)
	return log, args.Error(1)
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]string{}}
}

func (c *fakeCache) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[key], nil
}

func (c *fakeCache) Set(key string, value string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func newTestKycHandler(store *MockKycStore, client *sumsub.Client, wg *sync.WaitGroup) *KycHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errH := errHandler.New("", nil, logger)
	baseURL := "http://localhost"

	return NewKycHandler(&KycHandler{
		Store:        store,
		Verification: client,
		Cache:        newFakeCache(),
		ErrHandler:   errH,
		Helper:       helper.New(&baseURL, wg, errH),
	})
}

func TestHandleStartVerification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasPrefix(r.URL.RequestURI(), "/resources/applicants"))
		w.Write([]byte(`{"id":"abc123"}`))
	}))
	defer server.Close()

	client := sumsub.NewClient(server.URL, "test-app-token", "test-secret", "id-and-liveness")

	store := new(MockKycStore)
	store.On("StartUserVerification", "user-id-1", "abc123").Return(nil)
	store.On("CreateActivityLog", mock.Anything).Return(nil, nil)

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	req, err := http.NewRequest("POST", "/kyc/start", nil)
	require.NoError(t, err)
	req = context.ContextSetAuthenticatedUser(req, &database.User{
		ID:        "user-id-1",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@x.com",
		KycStatus: database.KycStatusNotStarted,
	})

	rr := httptest.NewRecorder()
	kycHandler.HandleStartVerification(rr, req)
	wg.Wait()

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "abc123")
	store.AssertExpectations(t)
}

func TestHandleStartVerificationRefusesWhenAlreadyPending(t *testing.T) {
	store := new(MockKycStore)
	client := sumsub.NewClient("http://127.0.0.1:0", "test-app-token", "test-secret", "id-and-liveness")

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	for _, status := range []string{database.KycStatusPending, database.KycStatusApproved} {
		req, err := http.NewRequest("POST", "/kyc/start", nil)
		require.NoError(t, err)
		req = context.ContextSetAuthenticatedUser(req, &database.User{ID: "user-id-1", KycStatus: status})

		rr := httptest.NewRecorder()
		kycHandler.HandleStartVerification(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	}

	store.AssertNotCalled(t, "StartUserVerification", mock.Anything, mock.Anything)
}

func TestHandleStartVerificationSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"description":"Unknown level 'nope'"}`))
	}))
	defer server.Close()

	client := sumsub.NewClient(server.URL, "test-app-token", "test-secret", "nope")

	store := new(MockKycStore)

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	req, err := http.NewRequest("POST", "/kyc/start", nil)
	require.NoError(t, err)
	req = context.ContextSetAuthenticatedUser(req, &database.User{ID: "user-id-1", KycStatus: database.KycStatusNotStarted})

	rr := httptest.NewRecorder()
	kycHandler.HandleStartVerification(rr, req)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "Unknown level")
	store.AssertNotCalled(t, "StartUserVerification", mock.Anything, mock.Anything)
}

func TestHandleGenerateAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resources/accessTokens?userId=abc123&levelName=id-and-liveness", r.URL.RequestURI())
		w.Write([]byte(`{"token":"tok_xyz"}`))
	}))
	defer server.Close()

	client := sumsub.NewClient(server.URL, "test-app-token", "test-secret", "id-and-liveness")

	store := new(MockKycStore)

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	req, err := http.NewRequest("POST", "/kyc/access-token", nil)
	require.NoError(t, err)
	req = context.ContextSetAuthenticatedUser(req, &database.User{
		ID:             "user-id-1",
		KycStatus:      database.KycStatusPending,
		KycApplicantID: sql.NullString{String: "abc123", Valid: true},
	})

	rr := httptest.NewRecorder()
	kycHandler.HandleGenerateAccessToken(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "tok_xyz")
}

func TestHandleGenerateAccessTokenRequiresStartedVerification(t *testing.T) {
	store := new(MockKycStore)
	client := sumsub.NewClient("http://127.0.0.1:0", "test-app-token", "test-secret", "id-and-liveness")

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	req, err := http.NewRequest("POST", "/kyc/access-token", nil)
	require.NoError(t, err)
	req = context.ContextSetAuthenticatedUser(req, &database.User{ID: "user-id-1", KycStatus: database.KycStatusNotStarted})

	rr := httptest.NewRecorder()
	kycHandler.HandleGenerateAccessToken(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleVerificationLevelsCaches(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"levels":[{"name":"id-and-liveness"}]}`))
	}))
	defer server.Close()

	client := sumsub.NewClient(server.URL, "test-app-token", "test-secret", "id-and-liveness")

	store := new(MockKycStore)

	var wg sync.WaitGroup
	kycHandler := newTestKycHandler(store, client, &wg)

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest("GET", "/kyc/levels", nil)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		kycHandler.HandleVerificationLevels(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "id-and-liveness")
	}

	// second request is served from cache
	require.Equal(t, 1, calls)
}
