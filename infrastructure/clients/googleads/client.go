package googleads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ads-sync/domain/apperror"
	"ads-sync/domain/dto"
	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	requestCost     = 1
	maxErrorBody    = 4096
	breakerFailures = 5
)

// Config represents Google Ads API configuration
type Config struct {
	BaseURL         string
	APIVersion      string
	DeveloperToken  string
	LoginCustomerID string
	Timeout         time.Duration
	// MaxWait bounds how long a request waits for a rate-limit token.
	MaxWait time.Duration
}

// Client reads reporting data through the shared rate limiter and the credential vault.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    repository.IRateLimiter
	vault      repository.ICredentialVault
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg Config, limiter repository.IRateLimiter, vault repository.ICredentialVault, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://googleads.googleapis.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v17"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	settings := gobreaker.Settings{
		Name:        "google-ads",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// client errors say nothing about the health of the API
		IsSuccessful: func(err error) bool {
			var provErr *apperror.ProviderError
			return err == nil || (errors.As(err, &provErr) && provErr.Permanent())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.GetLogger().
				WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("Circuit breaker state changed")
		},
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		vault:      vault,
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Search runs a GAQL query and follows nextPageToken until the last page.
func (c *Client) Search(ctx context.Context, connectionID, customerID, query string) ([]searchRow, error) {
	endpoint := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", c.cfg.BaseURL, c.cfg.APIVersion, customerID)

	var rows []searchRow
	pageToken := ""
	for {
		body, err := json.Marshal(searchRequest{Query: query, PageToken: pageToken})
		if err != nil {
			return nil, err
		}
		raw, err := c.do(ctx, connectionID, customerID, http.MethodPost, endpoint, body)
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		rows = append(rows, page.Results...)
		if page.NextPageToken == "" {
			return rows, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) ListAccessibleAccounts(ctx context.Context, conn *model.Connection) ([]dto.AccessibleAccount, error) {
	endpoint := fmt.Sprintf("%s/%s/customers:listAccessibleCustomers", c.cfg.BaseURL, c.cfg.APIVersion)
	raw, err := c.do(ctx, conn.ID, "", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var listed listAccessibleCustomersResponse
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil, fmt.Errorf("decode accessible customers: %w", err)
	}

	accounts := make([]dto.AccessibleAccount, 0, len(listed.ResourceNames))
	for _, name := range listed.ResourceNames {
		customerID := strings.TrimPrefix(name, "customers/")
		rows, err := c.Search(ctx, conn.ID, customerID, customerQuery)
		if err != nil {
			// an auth failure affects every customer, so stop instead of skipping
			var authErr *apperror.AuthError
			if errors.As(err, &authErr) || ctx.Err() != nil {
				return nil, err
			}
			logger.GetLogger().
				WithField("connection_id", conn.ID).
				WithField("customer_id", customerID).
				WithField("error", err).
				Warn("Skipping inaccessible customer")
			continue
		}
		if len(rows) == 0 || rows[0].Customer == nil {
			continue
		}
		cust := rows[0].Customer
		accounts = append(accounts, dto.AccessibleAccount{
			ExternalID:   customerID,
			Name:         cust.DescriptiveName,
			CurrencyCode: cust.CurrencyCode,
			TimeZone:     cust.TimeZone,
			IsManager:    cust.Manager,
		})
	}
	return accounts, nil
}

func (c *Client) do(ctx context.Context, connectionID, customerID, method, endpoint string, body []byte) ([]byte, error) {
	ok, err := c.limiter.WaitForToken(ctx, requestCost, c.cfg.MaxWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperror.RateLimitExceededError{Cost: requestCost, Waited: c.cfg.MaxWait.String()}
	}

	token, err := c.vault.GetValidAccessToken(ctx, connectionID)
	if err != nil {
		var authErr *apperror.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, fmt.Errorf("access token for connection %s: %w", connectionID, err)
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, token, customerID, method, endpoint, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &apperror.ProviderError{StatusCode: http.StatusServiceUnavailable, Err: err}
	}
	return raw, err
}

func (c *Client) send(ctx context.Context, token, customerID, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" && c.cfg.LoginCustomerID != customerID {
		req.Header.Set("login-customer-id", c.cfg.LoginCustomerID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google ads request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read google ads response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperror.ProviderError{StatusCode: resp.StatusCode, Body: errorMessage(raw)}
	}
	return raw, nil
}

func errorMessage(raw []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Status + ": " + apiErr.Error.Message
	}
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(raw)
}
