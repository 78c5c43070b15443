package sumsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// ProviderError carries the provider's own description of a failed call
// alongside the HTTP status it answered with.
type ProviderError struct {
	StatusCode  int
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sumsub: %s (status %d)", e.Description, e.StatusCode)
}

type Applicant struct {
	ID string

	// Existing is set when applicant creation hit the provider's
	// "already exists" conflict and the id of the existing applicant was
	// recovered instead. Not an error for callers.
	Existing bool
}

type ApplicantInfo struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	AccountType string
}

// Client talks to the verification provider's REST API. Every request is
// signed; none of the responses are cached here.
type Client struct {
	baseURL      string
	defaultLevel string
	signer       *Signer
	httpClient   *http.Client
}

func NewClient(baseURL, appToken, secretKey, defaultLevel string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultLevel: defaultLevel,
		signer:       NewSigner(appToken, secretKey),
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) DefaultLevel() string {
	return c.defaultLevel
}

func (c *Client) Signer() *Signer {
	return c.signer
}

// do signs and executes one request. The path must include the query string,
// and body must be exactly the bytes to transmit, since both are folded into
// the signature.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	headers, err := c.signer.Sign(method, path, body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header = headers

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var providerResp struct {
			Description string `json:"description"`
		}
		json.Unmarshal(respBody, &providerResp)

		if providerResp.Description == "" {
			providerResp.Description = http.StatusText(resp.StatusCode)
		}

		return nil, &ProviderError{
			StatusCode:  resp.StatusCode,
			Description: providerResp.Description,
		}
	}

	return respBody, nil
}

// CreateApplicant registers a verification subject with the provider under
// the given level. externalUserID is caller-chosen and correlates the local
// account with the provider's applicant.
func (c *Client) CreateApplicant(ctx context.Context, externalUserID string, info ApplicantInfo, levelName string) (*Applicant, error) {
	if levelName == "" {
		levelName = c.defaultLevel
	}

	userType := "individual"
	if info.AccountType == "business" {
		userType = "company"
	}

	payload := struct {
		ExternalUserId string `json:"externalUserId"`
		Email          string `json:"email"`
		Phone          string `json:"phone,omitempty"`
		FirstName      string `json:"firstName"`
		LastName       string `json:"lastName"`
		Lang           string `json:"lang"`
		FixedInfo      struct {
			UserType string `json:"userType"`
		} `json:"fixedInfo"`
	}{
		ExternalUserId: externalUserID,
		Email:          info.Email,
		Phone:          info.Phone,
		FirstName:      info.FirstName,
		LastName:       info.LastName,
		Lang:           "en",
	}
	payload.FixedInfo.UserType = userType

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	path := "/resources/applicants?levelName=" + url.QueryEscape(levelName)

	respBody, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, err
	}

	return &Applicant{ID: created.ID}, nil
}

var conflictApplicantIDRgx = regexp.MustCompile(`already exists: ([0-9a-f]+)`)

// GetOrCreateApplicant makes applicant creation safe to retry. When the
// provider reports that an applicant with this externalUserId already exists,
// the existing id is lifted out of the error description and returned with
// Existing set, so a client-side retry never creates a duplicate subject.
// If the conflict text cannot be parsed the original error propagates; we do
// not fabricate an id.
func (c *Client) GetOrCreateApplicant(ctx context.Context, externalUserID string, info ApplicantInfo, levelName string) (*Applicant, error) {
	applicant, err := c.CreateApplicant(ctx, externalUserID, info, levelName)
	if err == nil {
		return applicant, nil
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) && strings.Contains(providerErr.Description, "already exists") {
		match := conflictApplicantIDRgx.FindStringSubmatch(providerErr.Description)
		if match != nil {
			return &Applicant{ID: match[1], Existing: true}, nil
		}
	}

	return nil, err
}

// GetApplicant fetches the provider's current representation of an applicant.
func (c *Client) GetApplicant(ctx context.Context, applicantID string) (json.RawMessage, error) {
	path := "/resources/applicants/" + applicantID

	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(respBody), nil
}

// GenerateAccessToken mints a short-lived credential for the client-side
// verification widget. Tokens expire provider-side and are never cached;
// callers request a fresh one on every use.
func (c *Client) GenerateAccessToken(ctx context.Context, applicantID, levelName string) (string, error) {
	if levelName == "" {
		levelName = c.defaultLevel
	}

	path := "/resources/accessTokens?userId=" + url.QueryEscape(applicantID) + "&levelName=" + url.QueryEscape(levelName)

	respBody, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return "", err
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", err
	}

	return tokenResp.Token, nil
}

// GetLevels lists the verification levels configured for this account.
func (c *Client) GetLevels(ctx context.Context) (json.RawMessage, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/resources/levels", nil)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(respBody), nil
}
