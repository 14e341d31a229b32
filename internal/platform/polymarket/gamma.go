package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma market metadata
// API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma client rooted at baseURL, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarketBySlug returns the first Gamma market matching slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (APIGammaMarket, error) {
	body, err := doGet(ctx, g.httpClient, g.baseURL+"/markets?"+url.Values{"slug": {slug}}.Encode())
	if err != nil {
		return APIGammaMarket{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, notFoundAsMarket(err))
	}

	var markets []APIGammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return APIGammaMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return APIGammaMarket{}, fmt.Errorf("polymarket/gamma: slug %s: %w", slug, domain.ErrMarketNotFound)
	}
	return markets[0], nil
}

// QuestionID returns the question identifier of the market with slug.
func (g *GammaClient) QuestionID(ctx context.Context, slug string) (common.Hash, error) {
	if slug == "" {
		return common.Hash{}, fmt.Errorf("polymarket/gamma: empty slug: %w", domain.ErrMarketNotFound)
	}
	m, err := g.GetMarketBySlug(ctx, slug)
	if err != nil {
		return common.Hash{}, err
	}
	return parseQuestionID(m.QuestionID)
}
