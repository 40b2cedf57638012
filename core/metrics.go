package core

import "context"

const (
	MetricAPIRequests        = "redirects.api.requests.total"
	MetricAPIDuration        = "redirects.api.duration_ms"
	MetricSessionChanges     = "redirects.session.changes.total"
	MetricPageFetches        = "redirects.pagination.fetches.total"
	MetricMutations          = "redirects.mutation.total"
	MetricAuthorizationClear = "redirects.session.authorization_cleared.total"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
