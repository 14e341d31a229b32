package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB API. Only the
// public market listing is used.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClobClient creates a CLOB client rooted at baseURL, e.g.
// "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// QuestionID returns the question identifier of the market with slug. An
// unknown slug or an empty listing yields domain.ErrMarketNotFound.
func (c *ClobClient) QuestionID(ctx context.Context, slug string) (common.Hash, error) {
	if slug == "" {
		return common.Hash{}, fmt.Errorf("polymarket/clob: empty slug: %w", domain.ErrMarketNotFound)
	}

	body, err := doGet(ctx, c.httpClient, c.baseURL+"/markets?"+url.Values{"slug": {slug}}.Encode())
	if err != nil {
		return common.Hash{}, fmt.Errorf("polymarket/clob: markets %s: %w", slug, notFoundAsMarket(err))
	}

	var page APIMarketPage
	if err := json.Unmarshal(body, &page); err != nil {
		return common.Hash{}, fmt.Errorf("polymarket/clob: decode markets: %w", err)
	}
	if len(page.Data) == 0 {
		return common.Hash{}, fmt.Errorf("polymarket/clob: slug %s: %w", slug, domain.ErrMarketNotFound)
	}
	return parseQuestionID(page.Data[0].QuestionID)
}

// doGet performs a GET request and returns the body of a 2xx response.
func doGet(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %v", domain.ErrNetwork, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %w: %s", statusCode, domain.ErrNetwork, bodyStr)
	}
}

func notFoundAsMarket(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrMarketNotFound, err)
	}
	return err
}
