package external

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const metricPublishTimeout = 5 * time.Second

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes per-request metrics to CloudWatch.
// It satisfies core.MetricsCollector.
//
// Metrics emitted per request:
//   - RequestCount: Dims {Method, Endpoint, Status}
//   - RequestLatency: Dims {Method, Endpoint}, milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a collector publishing to the given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits count and latency datums for one handled request.
// Publishing runs with its own timeout and never blocks the response path
// beyond the middleware's deferred call.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), metricPublishTimeout)
	defer cancel()

	methodDim := cwtypes.Dimension{Name: aws.String("Method"), Value: aws.String(method)}
	endpointDim := cwtypes.Dimension{Name: aws.String("Endpoint"), Value: aws.String(endpoint)}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("RequestCount"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					methodDim,
					endpointDim,
					{Name: aws.String("Status"), Value: aws.String(status)},
				},
			},
			{
				MetricName: aws.String("RequestLatency"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{methodDim, endpointDim},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish request metrics",
			"error", err.Error(),
			"endpoint", endpoint,
		)
	}
}

// NoopMetrics discards all metrics. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {}
