package sink

import (
	"context"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/metric"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// datadogSink submits points through the metrics intake v2 API, one series
// per point. The SDK owns transport concerns for the submission path.
type datadogSink struct {
	api    *datadogV2.MetricsApi
	apiKey string
	appKey string
}

func newDatadogSink(cfg Config) *datadogSink {
	configuration := datadog.NewConfiguration()
	client := datadog.NewAPIClient(configuration)

	return &datadogSink{
		api:    datadogV2.NewMetricsApi(client),
		apiKey: cfg.APIKey,
		appKey: cfg.AppKey,
	}
}

func intakeType(k metric.Kind) datadogV2.MetricIntakeType {
	switch k {
	case metric.Count:
		return datadogV2.METRICINTAKETYPE_COUNT
	case metric.Rate:
		return datadogV2.METRICINTAKETYPE_RATE
	default:
		return datadogV2.METRICINTAKETYPE_GAUGE
	}
}

func (s *datadogSink) Submit(ctx context.Context, point metric.Point) error {
	errFactory := errors.New()

	body := datadogV2.MetricPayload{
		Series: []datadogV2.MetricSeries{
			{
				Metric: point.Name,
				Type:   intakeType(point.Kind).Ptr(),
				Points: []datadogV2.MetricPoint{
					{
						Timestamp: datadog.PtrInt64(point.Timestamp),
						Value:     datadog.PtrFloat64(point.Value),
					},
				},
				Tags: point.Tags,
			},
		},
	}

	_, httpResp, err := s.api.SubmitMetrics(s.authContext(ctx), body)
	if err != nil {
		if httpResp != nil {
			return errFactory.Wrap(ErrSubmitStatus, err).WithData(httpResp.StatusCode)
		}
		return errFactory.Wrap(ErrSubmitFailed, err)
	}

	return nil
}

func (s *datadogSink) Close() error {
	return nil
}

func (s *datadogSink) authContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, datadog.ContextAPIKeys, map[string]datadog.APIKey{
		"apiKeyAuth": {Key: s.apiKey},
		"appKeyAuth": {Key: s.appKey},
	})
}
