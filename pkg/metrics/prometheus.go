// Package metrics provides Prometheus metrics for the blueskyer service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Firehose intake
	framesReceived   prometheus.Counter
	framesIgnored    prometheus.Counter
	framesDropped    prometheus.Counter
	framesByTag      *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	recordsByType    *prometheus.CounterVec
	commitsDeduped   prometheus.Counter
	connectionState  prometheus.Gauge
	connectAttempts  *prometheus.CounterVec
	lastSeq          prometheus.Gauge
	frameProcessing  prometheus.Histogram
	handlerLatency   prometheus.Histogram
	frameSizeBytes   prometheus.Histogram
	sendErrors       prometheus.Counter
	recordsDecoded   prometheus.Counter
	blocksPerCommit  prometheus.Histogram
	errorFrames      prometheus.Counter
	unknownRecordTyp prometheus.Counter

	// Queue Metrics - frame intake buffer
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Worker Metrics - decode workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Engagement Metrics
	scoringRuns      prometheus.Counter
	scoringDuration  prometheus.Histogram
	engagementNodes  prometheus.Histogram
	profileLookups   prometheus.Counter
	profileBatches   prometheus.Counter
	malformedLikeURI prometheus.Counter

	// XRPC Metrics - upstream REST calls
	xrpcRequests        *prometheus.CounterVec
	xrpcRequestDuration *prometheus.HistogramVec
	xrpcSwallowedErrors *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "blueskyer",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.framesReceived = m.counter("firehose_frames_received_total", "Binary frames received from the firehose")
	m.framesIgnored = m.counter("firehose_frames_ignored_total", "Non-binary frames ignored")
	m.framesDropped = m.counter("firehose_frames_dropped_total", "Binary frames dropped because the intake queue was full or closed")
	m.framesByTag = m.counterVec("firehose_frames_by_tag_total", "Decoded frames by header tag", "tag")
	m.decodeErrors = m.counterVec("firehose_decode_errors_total", "Frames that failed to decode, by pipeline stage", "stage")
	m.recordsByType = m.counterVec("firehose_records_dispatched_total", "Records handed to the repo handler, by record type", "type")
	m.commitsDeduped = m.counter("firehose_commits_deduplicated_total", "Commits skipped because their sequence number was already seen")
	m.connectionState = m.gauge("firehose_connection_state", "Connection state: 0 disconnected, 1 connecting, 2 connected")
	m.connectAttempts = m.counterVec("firehose_connect_attempts_total", "Socket open attempts by result", "result")
	m.lastSeq = m.gauge("firehose_last_seq", "Sequence number of the most recent commit")
	m.frameProcessing = m.histogram("firehose_frame_processing_milliseconds", "Time to decode and dispatch one frame", m.histogramBuckets)
	m.handlerLatency = m.histogram("firehose_handler_milliseconds", "Time spent inside the repo handler per record", m.histogramBuckets)
	m.frameSizeBytes = m.histogram("firehose_frame_size_bytes", "Size of binary frames", prometheus.ExponentialBuckets(256, 4, 8))
	m.sendErrors = m.counter("firehose_send_errors_total", "Outbound messages that could not be written")
	m.recordsDecoded = m.counter("firehose_blocks_decoded_total", "Archive blocks decoded")
	m.blocksPerCommit = m.histogram("firehose_blocks_per_commit", "Blocks per commit archive", prometheus.LinearBuckets(1, 4, 10))
	m.errorFrames = m.counter("firehose_error_frames_total", "Error frames (op -1) received")
	m.unknownRecordTyp = m.counter("firehose_unrecognized_records_total", "Records whose $type has no typed variant")

	m.queueSize = m.gauge("queue_size", "Current size of the frame queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the frame queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Frame queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Frames enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Frames dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue failures by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Current number of decode workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency per frame", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Frames a worker failed to process")

	m.scoringRuns = m.counter("engagement_scoring_runs_total", "Engagement scoring computations")
	m.scoringDuration = m.histogram("engagement_scoring_milliseconds", "Engagement scoring duration including profile lookups", m.histogramBuckets)
	m.engagementNodes = m.histogram("engagement_nodes", "Distinct actors accumulated per scoring run", prometheus.ExponentialBuckets(1, 2, 10))
	m.profileLookups = m.counter("engagement_profiles_resolved_total", "Profiles resolved for ranked actors")
	m.profileBatches = m.counter("engagement_profile_batches_total", "Profile lookup batches issued")
	m.malformedLikeURI = m.counter("engagement_malformed_like_uri_total", "Like records whose subject URI carried no DID")

	m.xrpcRequests = m.counterVec("xrpc_requests_total", "XRPC requests by endpoint and status", "endpoint", "status")
	m.xrpcRequestDuration = m.histogramVec("xrpc_request_duration_milliseconds", "XRPC request duration", "endpoint")
	m.xrpcSwallowedErrors = m.counterVec("xrpc_swallowed_errors_total", "Upstream failures degraded to empty results", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Firehose Metrics Functions.

// RecordFrameReceived counts one binary frame of the given size.
func RecordFrameReceived(size int) {
	globalManager.framesReceived.Inc()
	globalManager.frameSizeBytes.Observe(float64(size))
}

// RecordFrameIgnored counts a non-binary frame.
func RecordFrameIgnored() {
	globalManager.framesIgnored.Inc()
}

// RecordFrameDropped counts a frame lost to intake backpressure.
func RecordFrameDropped() {
	globalManager.framesDropped.Inc()
}

// RecordFrameTag counts a decoded frame by its header tag.
func RecordFrameTag(tag string) {
	globalManager.framesByTag.WithLabelValues(tag).Inc()
}

// RecordErrorFrame counts an op -1 frame.
func RecordErrorFrame() {
	globalManager.errorFrames.Inc()
}

// RecordDecodeError counts a decode failure at stage.
func RecordDecodeError(stage string) {
	globalManager.decodeErrors.WithLabelValues(stage).Inc()
}

// RecordBlocks records how many blocks one commit archive carried.
func RecordBlocks(n int) {
	globalManager.blocksPerCommit.Observe(float64(n))
	globalManager.recordsDecoded.Add(float64(n))
}

// RecordRecordDispatched counts a record handed to the handler.
func RecordRecordDispatched(recordType string, handlerMs float64) {
	globalManager.recordsByType.WithLabelValues(recordType).Inc()
	globalManager.handlerLatency.Observe(handlerMs)
}

// RecordUnrecognizedRecord counts a record without a typed variant.
func RecordUnrecognizedRecord() {
	globalManager.unknownRecordTyp.Inc()
}

// RecordCommitDeduplicated counts a replayed commit.
func RecordCommitDeduplicated() {
	globalManager.commitsDeduped.Inc()
}

// UpdateConnectionState sets the connection state gauge.
func UpdateConnectionState(state int) {
	globalManager.connectionState.Set(float64(state))
}

// RecordConnectAttempt counts a socket open attempt; result is "success" or "failure".
func RecordConnectAttempt(result string) {
	globalManager.connectAttempts.WithLabelValues(result).Inc()
}

// UpdateLastSeq sets the most recent commit sequence.
func UpdateLastSeq(seq int64) {
	globalManager.lastSeq.Set(float64(seq))
}

// RecordFrameProcessingLatency records decode+dispatch latency.
func RecordFrameProcessingLatency(latencyMs float64) {
	globalManager.frameProcessing.Observe(latencyMs)
}

// RecordSendError counts an outbound write failure.
func RecordSendError() {
	globalManager.sendErrors.Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter for reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Engagement Metrics Functions.

// RecordScoring records one scoring run.
func RecordScoring(nodes int, latencyMs float64) {
	globalManager.scoringRuns.Inc()
	globalManager.engagementNodes.Observe(float64(nodes))
	globalManager.scoringDuration.Observe(latencyMs)
}

// RecordProfileBatch counts one profile lookup batch resolving n profiles.
func RecordProfileBatch(n int) {
	globalManager.profileBatches.Inc()
	globalManager.profileLookups.Add(float64(n))
}

// RecordMalformedLikeURI counts a like record skipped during scoring.
func RecordMalformedLikeURI() {
	globalManager.malformedLikeURI.Inc()
}

// XRPC Metrics Functions.

// RecordXRPCRequest records an upstream call.
func RecordXRPCRequest(endpoint, status string, latencyMs float64) {
	globalManager.xrpcRequests.WithLabelValues(endpoint, status).Inc()
	globalManager.xrpcRequestDuration.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordSwallowedError counts an upstream failure that was degraded to an empty result.
func RecordSwallowedError(operation string) {
	globalManager.xrpcSwallowedErrors.WithLabelValues(operation).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Configure rebuilds the global manager on a fresh registry with opts. It must
// run before anything captures GetRegistry, typically once at startup.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
