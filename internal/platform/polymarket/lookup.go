package polymarket

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// SlugFromURL returns the last path segment of a market URL, or the one
// before it when the URL ends in a slash. Unparseable input gives "".
func SlugFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return ""
}

// questionSource is one API able to map a slug to a question ID.
type questionSource interface {
	QuestionID(ctx context.Context, slug string) (common.Hash, error)
}

// MarketLookup resolves market URLs to question IDs via the CLOB API, then
// Gamma when the CLOB has no usable answer.
type MarketLookup struct {
	sources []questionSource
	logger  *slog.Logger
}

// NewMarketLookup builds a lookup over clob and, if non-nil, gamma.
func NewMarketLookup(clob *ClobClient, gamma *GammaClient, logger *slog.Logger) *MarketLookup {
	sources := []questionSource{clob}
	if gamma != nil {
		sources = append(sources, gamma)
	}
	return &MarketLookup{sources: sources, logger: logger.With(slog.String("component", "market_lookup"))}
}

// QuestionID returns the question ID for the market at marketURL.
func (m *MarketLookup) QuestionID(ctx context.Context, marketURL string) (string, common.Hash, error) {
	slug := SlugFromURL(marketURL)
	if slug == "" {
		return "", common.Hash{}, domain.ErrMarketNotFound
	}

	var lastErr error
	for i, src := range m.sources {
		qid, err := src.QuestionID(ctx, slug)
		if err == nil {
			return slug, qid, nil
		}
		lastErr = err
		if i < len(m.sources)-1 {
			m.logger.WarnContext(ctx, "question lookup failed; trying next source",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return slug, common.Hash{}, lastErr
}
