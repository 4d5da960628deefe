package handlers

import (
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// OpportunityReader is the read side of the opportunity cache
type OpportunityReader interface {
	Get(key models.Key) (models.Opportunity, bool)
	GetAll() iter.Seq[models.Opportunity]
	ExchangePairOpportunityCounts() []models.ExchangePairCount
}

// OpportunityHandler serves cached arbitrage opportunities. It never
// triggers a calculation.
type OpportunityHandler struct {
	reader    OpportunityReader
	formatter *Formatter
}

// DepthResponse is one histogram row with display fields
type DepthResponse struct {
	*models.OpportunityAtDepth
	RelativeProfitDisplay string `json:"relative_profit_display"`
	ProfitUsdDisplay      string `json:"profit_usd_display"`
}

// OpportunityResponse is an opportunity with display fields
type OpportunityResponse struct {
	Key                        string              `json:"key"`
	CurrencyPair               models.CurrencyPair `json:"currency_pair"`
	ExchangePair               models.ExchangePair `json:"exchange_pair"`
	BuyAtExchange              models.Exchange     `json:"buy_at_exchange"`
	SellAtExchange             models.Exchange     `json:"sell_at_exchange"`
	Usd24hVolumeAtBuyExchange  decimal.NullDecimal `json:"usd_24h_volume_at_buy_exchange"`
	Usd24hVolumeAtSellExchange decimal.NullDecimal `json:"usd_24h_volume_at_sell_exchange"`
	Histogram                  []*DepthResponse    `json:"histogram"`
	BestRelativeProfit         *string             `json:"best_relative_profit_display"`
	CalculatedAt               time.Time           `json:"calculated_at"`
	OldestSourceDataTimestamp  time.Time           `json:"oldest_source_data_timestamp"`
}

// OpportunitiesResponse is the list endpoint payload
type OpportunitiesResponse struct {
	Opportunities []OpportunityResponse `json:"opportunities"`
	Count         int                   `json:"count"`
	Timestamp     time.Time             `json:"timestamp"`
}

// ExchangePairCountsResponse is the counts endpoint payload
type ExchangePairCountsResponse struct {
	ExchangePairs []models.ExchangePairCount `json:"exchange_pairs"`
	Total         int                        `json:"total"`
}

// NewOpportunityHandler creates a new opportunity handler
func NewOpportunityHandler(reader OpportunityReader, formatter *Formatter) *OpportunityHandler {
	if formatter == nil {
		formatter = NewFormatter("en")
	}
	return &OpportunityHandler{reader: reader, formatter: formatter}
}

// GetOpportunities lists cached opportunities. Optional filters:
// currency_pair=ETH/BTC, exchange_pair=binance:kraken, has_depth=true.
func (h *OpportunityHandler) GetOpportunities(c *gin.Context) {
	var (
		pairFilter     *models.CurrencyPair
		exchangeFilter *models.ExchangePair
	)
	if raw := c.Query("currency_pair"); raw != "" {
		pair, err := models.ParseCurrencyPair(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pairFilter = &pair
	}
	if raw := c.Query("exchange_pair"); raw != "" {
		pair, err := models.ParseExchangePair(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		exchangeFilter = &pair
	}
	hasDepth := strings.EqualFold(c.Query("has_depth"), "true")

	response := OpportunitiesResponse{
		Opportunities: []OpportunityResponse{},
		Timestamp:     time.Now(),
	}
	for opportunity := range h.reader.GetAll() {
		if pairFilter != nil && opportunity.Key.CurrencyPair != *pairFilter {
			continue
		}
		if exchangeFilter != nil && opportunity.Key.ExchangePair != *exchangeFilter {
			continue
		}
		if hasDepth && !opportunity.HasAnyDepth() {
			continue
		}
		response.Opportunities = append(response.Opportunities, h.toResponse(opportunity))
	}
	response.Count = len(response.Opportunities)

	c.JSON(http.StatusOK, response)
}

// GetOpportunity returns the opportunity of one key or 404
func (h *OpportunityHandler) GetOpportunity(c *gin.Context) {
	key := models.NewKey(
		models.NewCurrencyPair(c.Param("base"), c.Param("counter")),
		models.NewExchangePair(c.Param("first"), c.Param("second")),
	)

	opportunity, ok := h.reader.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no opportunity cached for " + key.String(),
		})
		return
	}
	c.JSON(http.StatusOK, h.toResponse(opportunity))
}

// GetExchangePairCounts returns, per exchange pair, the number of keys
// with at least one histogram row
func (h *OpportunityHandler) GetExchangePairCounts(c *gin.Context) {
	counts := h.reader.ExchangePairOpportunityCounts()
	total := 0
	for _, count := range counts {
		total += count.Count
	}
	if counts == nil {
		counts = []models.ExchangePairCount{}
	}
	c.JSON(http.StatusOK, ExchangePairCountsResponse{ExchangePairs: counts, Total: total})
}

func (h *OpportunityHandler) toResponse(opportunity models.Opportunity) OpportunityResponse {
	response := OpportunityResponse{
		Key:                        opportunity.Key.String(),
		CurrencyPair:               opportunity.Key.CurrencyPair,
		ExchangePair:               opportunity.Key.ExchangePair,
		BuyAtExchange:              opportunity.BuyAtExchange,
		SellAtExchange:             opportunity.SellAtExchange,
		Usd24hVolumeAtBuyExchange:  opportunity.Usd24hVolumeAtBuyExchange,
		Usd24hVolumeAtSellExchange: opportunity.Usd24hVolumeAtSellExchange,
		Histogram:                  make([]*DepthResponse, len(opportunity.Histogram)),
		CalculatedAt:               opportunity.CalculatedAt,
		OldestSourceDataTimestamp:  opportunity.OldestSourceDataTimestamp,
	}

	var best *decimal.Decimal
	for i, row := range opportunity.Histogram {
		if row == nil {
			continue
		}
		response.Histogram[i] = &DepthResponse{
			OpportunityAtDepth:    row,
			RelativeProfitDisplay: h.formatter.Percent(row.RelativeProfit),
			ProfitUsdDisplay:      h.formatter.Usd(row.ProfitUsd),
		}
		if best == nil || row.RelativeProfit.GreaterThan(*best) {
			profit := row.RelativeProfit
			best = &profit
		}
	}
	if best != nil {
		display := h.formatter.Percent(*best)
		response.BestRelativeProfit = &display
	}
	return response
}
