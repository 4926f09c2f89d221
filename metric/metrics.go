package metric

import "github.com/prometheus/client_golang/prometheus"

// endpoint label values
const (
	EndpointWellKnown            = "well-known"
	EndpointJwksUri              = "jwks_uri"
	EndpointAuthorizationRequest = "authorization_request"
)

var (
	namespace = "oidcreq"

	OIDCOutcomeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call",
			Help:      "Number of outcome per oidc operation",
		},
		[]string{
			"oidc_endpoint",
			"outcome",
		},
	)

	OIDCDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_dur",
			Help:      "Histogram for the duration of oidc operation",
		},
		[]string{"oidc_endpoint"},
	)

	// RequestObjectCounter counts the generated authorization
	// request by delivery mode (plain, signed, encrypted)
	RequestObjectCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_object",
			Help:      "Number of authorization request url generated per mode",
		},
		[]string{"mode"},
	)
)

func init() {
	PrometheusMetricsRegister()
}

// PrometheusMetricsRegister Register metrics with prometheus
func PrometheusMetricsRegister() {
	prometheus.MustRegister(OIDCDurationHist)
	prometheus.MustRegister(OIDCOutcomeCounter)
	prometheus.MustRegister(RequestObjectCounter)
}

// NewTimer observes the duration of the call into
// the histogram for endpoint, use with defer ObserveDuration()
func NewTimer(endpoint string) *prometheus.Timer {
	return prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		OIDCDurationHist.WithLabelValues(endpoint).Observe(v)
	}))
}

func MonitorError(endpoint string, err error) {

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	MonitorOutcome(endpoint, outcome)
}

func DeferMonitorError(endpoint string, err *error) {
	MonitorError(endpoint, *err)
}

func MonitorOutcome(endpoint, outcome string) {

	OIDCOutcomeCounter.With(prometheus.Labels{
		"oidc_endpoint": endpoint,
		"outcome":       outcome,
	}).Inc()
}

func MonitorRequestObject(mode string) {
	RequestObjectCounter.WithLabelValues(mode).Inc()
}
