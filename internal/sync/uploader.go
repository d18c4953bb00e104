package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// UploaderConfig carries one item family's endpoint and retry policy.
type UploaderConfig struct {
	Endpoint   string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	// Backoff computes the delay before retry attempt, 1-indexed.
	Backoff func(attempt int) time.Duration
}

// RingUploaderConfig mirrors the ring family's documented defaults.
func RingUploaderConfig() UploaderConfig {
	return UploaderConfig{
		Endpoint:   "/api/ring-summaries",
		BatchSize:  50,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Backoff:    exponentialBackoff(2.0),
	}
}

// PredictionUploaderConfig mirrors the prediction family's documented defaults.
func PredictionUploaderConfig() UploaderConfig {
	return UploaderConfig{
		Endpoint:   "/api/predictions",
		BatchSize:  100,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Backoff:    exponentialBackoff(2.0),
	}
}

// WarningUploaderConfig mirrors the warning family's documented defaults.
func WarningUploaderConfig() UploaderConfig {
	return UploaderConfig{
		Endpoint:   "/api/warning-events",
		BatchSize:  20,
		Timeout:    45 * time.Second,
		MaxRetries: 5,
		Backoff:    exponentialBackoff(1.5),
	}
}

func exponentialBackoff(base float64) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(base, float64(attempt))) * time.Second
	}
}

// Uploader batches rows out of a Buffer and POSTs them to the cloud,
// tripping a circuit breaker on sustained failure so a dead endpoint stops
// eating retry latency until it recovers.
type Uploader struct {
	itemType     domain.SyncItemType
	cfg          UploaderConfig
	buffer       *Buffer
	client       *http.Client
	baseURL      string
	apiKey       string
	edgeDeviceID string
	projectID    string
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger

	// OnItemSynced fires once per row after a 200 or 201 response, right
	// after the buffer row is deleted. Lets the ring uploader flip sync_status on the
	// ring record without Uploader needing to know about ring_summary.
	OnItemSynced func(item sqlite.BufferItem)
}

// NewUploader constructs an Uploader for one item family.
func NewUploader(itemType domain.SyncItemType, cfg UploaderConfig, buffer *Buffer, baseURL, apiKey, edgeDeviceID, projectID string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(itemType) + "-uploader",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "uploader", name, "from", from, "to", to)
		},
	})
	return &Uploader{
		itemType:     itemType,
		cfg:          cfg,
		buffer:       buffer,
		client:       &http.Client{Timeout: cfg.Timeout},
		baseURL:      baseURL,
		apiKey:       apiKey,
		edgeDeviceID: edgeDeviceID,
		projectID:    projectID,
		breaker:      breaker,
		logger:       logger,
	}
}

// DrainOnce pulls one batch from the buffer and attempts to upload it,
// marking each row synced or failed according to the response contract.
// Returns the number of rows successfully synced.
func (u *Uploader) DrainOnce(ctx context.Context) (int, error) {
	items, err := u.buffer.GetBatch(u.itemType, u.cfg.BatchSize, u.cfg.MaxRetries)
	if err != nil {
		return 0, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load sync batch", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	if u.itemType == domain.SyncItemWarning {
		sortWarningsBySeverity(items)
	}

	body, err := u.buildRequestBody(items)
	if err != nil {
		return 0, err
	}

	result, httpErr := u.breaker.Execute(func() (interface{}, error) {
		return u.post(ctx, body)
	})

	synced := 0
	if httpErr != nil {
		// Circuit open or transport-level failure: treat the whole batch as
		// a retryable transient failure.
		for _, it := range items {
			_ = u.buffer.MarkFailed(it.ID, u.cfg.MaxRetries)
		}
		return 0, domain.ErrSyncTransient.WithDetail("cause", httpErr.Error())
	}

	status := result.(int)
	switch {
	case status == 200 || status == 201:
		for _, it := range items {
			if err := u.buffer.MarkSynced(it.ID); err != nil {
				u.logger.Warn("failed to mark item synced", "id", it.ID, "error", err)
				continue
			}
			synced++
			if u.OnItemSynced != nil {
				u.OnItemSynced(it)
			}
		}
	case status == 400:
		u.logger.Warn("permanent rejection, dropping batch", "uploader", u.itemType, "status", status)
		for _, it := range items {
			_ = u.buffer.MarkFailed(it.ID, 0) // forces immediate GC, permanent = no retry
		}
	case status == 401 || status == 403:
		u.logger.Warn("authentication failure, leaving batch queued", "uploader", u.itemType, "status", status)
		// leave retry_count untouched: an operator fix, not a data problem
	default:
		for _, it := range items {
			_ = u.buffer.MarkFailed(it.ID, u.cfg.MaxRetries)
		}
	}
	return synced, nil
}

func (u *Uploader) buildRequestBody(items []sqlite.BufferItem) ([]byte, error) {
	key := itemsKeyFor(u.itemType)
	raw := make([]json.RawMessage, len(items))
	for i, it := range items {
		raw[i] = json.RawMessage(it.Payload)
	}
	envelope := map[string]any{
		"edge_device_id": u.edgeDeviceID,
		"project_id":     u.projectID,
		key:              raw,
	}
	return json.Marshal(envelope)
}

func itemsKeyFor(itemType domain.SyncItemType) string {
	switch itemType {
	case domain.SyncItemRing:
		return "rings"
	case domain.SyncItemPrediction:
		return "predictions"
	case domain.SyncItemWarning:
		return "warnings"
	default:
		return "items"
	}
}

func (u *Uploader) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+u.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", u.apiKey))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

var warningSeverityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

// sortWarningsBySeverity orders a warning batch critical-first, matching
// the uploader's pre-sort requirement (priority already orders the buffer
// query, but ties across severities within the same priority bucket are
// broken explicitly here).
func sortWarningsBySeverity(items []sqlite.BufferItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return warningSeverityRank[severityOf(items[i])] < warningSeverityRank[severityOf(items[j])]
	})
}

func severityOf(it sqlite.BufferItem) string {
	var payload struct {
		Severity string `json:"severity"`
	}
	_ = json.Unmarshal(it.Payload, &payload)
	return payload.Severity
}
