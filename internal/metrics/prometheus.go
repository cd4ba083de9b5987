package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are live from package init so that callers never observe a nil
// collector; InitCustomMetrics only attaches them to a registry.
var (
	AuthorizeRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_authorize_requests_total",
		Help: "Total number of authorization requests received.",
	})
	SessionsAuthorizedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_sessions_authorized_total",
		Help: "Total number of sessions completed by the login provider.",
	})
	CodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_tokens_issued_total",
		Help: "Total number of access/refresh token pairs issued.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_tokens_refreshed_total",
		Help: "Total number of refresh-grant rotations performed.",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthd_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter.",
	})
)

// InitCustomMetrics registers the protocol counters with the given
// registry. It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		AuthorizeRequestsTotal,
		SessionsAuthorizedTotal,
		CodesIssuedTotal,
		TokensIssuedTotal,
		TokensRefreshedTotal,
		RateLimitedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}
