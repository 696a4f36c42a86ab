package marketdata

import (
	"fmt"
	"time"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/external/tiingo"
	"github.com/wonny/ewreturns/internal/external/yahoo"
	"github.com/wonny/ewreturns/pkg/config"
	"github.com/wonny/ewreturns/pkg/database"
	"github.com/wonny/ewreturns/pkg/httputil"
	"github.com/wonny/ewreturns/pkg/logger"
)

// NewProvider builds the upstream source named by provider
// (falls back to cfg.MarketData.Provider when empty)
func NewProvider(cfg *config.Config, provider string, log *logger.Logger) (contracts.MarketDataSource, error) {
	if provider == "" {
		provider = cfg.MarketData.Provider
	}

	hc := httputil.New(cfg, log)

	switch provider {
	case config.ProviderTiingo:
		if cfg.MarketData.TiingoAPIKey == "" {
			log.Warn("TIINGO_API_KEY is empty; requests will be rejected upstream")
		}
		return tiingo.NewClient(hc, log.WithField("provider", tiingo.Name), cfg.MarketData.TiingoBaseURL, cfg.MarketData.TiingoAPIKey), nil
	case config.ProviderYahoo:
		return yahoo.NewClient(hc, log.WithField("provider", yahoo.Name), cfg.MarketData.YahooBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown market data provider: %q", provider)
	}
}

// Layer stacks the optional Postgres store and Redis cache over upstream:
// cache → store → upstream. A nil db or cache skips that layer.
func Layer(upstream contracts.MarketDataSource, db database.Querier, cache Cache, ttl time.Duration, log *logger.Logger) contracts.MarketDataSource {
	src := upstream
	if db != nil {
		src = NewStore(src, db, log.WithField("layer", "store"))
	}
	if cache != nil {
		src = NewCached(src, cache, ttl, log.WithField("layer", "cache"))
	}
	return src
}
