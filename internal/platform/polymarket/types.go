package polymarket

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// APIMarketPage is the CLOB /markets response envelope.
type APIMarketPage struct {
	Data       []APIClobMarket `json:"data"`
	NextCursor string          `json:"next_cursor"`
	Count      int             `json:"count"`
}

// APIClobMarket is the subset of a CLOB market entry this client reads.
type APIClobMarket struct {
	ConditionID string `json:"condition_id"`
	QuestionID  string `json:"question_id"`
	MarketSlug  string `json:"market_slug"`
	Question    string `json:"question"`
	Closed      bool   `json:"closed"`
}

// APIGammaMarket is the subset of a Gamma market entry this client reads.
type APIGammaMarket struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
	ConditionID string `json:"conditionId"`
	QuestionID  string `json:"questionID"`
	Closed      bool   `json:"closed"`
}

// parseQuestionID decodes a 0x-prefixed 32-byte hex question identifier.
func parseQuestionID(raw string) (common.Hash, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("polymarket: malformed question_id %q: %w", raw, domain.ErrMarketNotFound)
	}
	return common.BytesToHash(b), nil
}
