package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate      AlertType = "session_failure_rate"
	AlertReviewRate       AlertType = "review_rate"
	AlertNoRecommendation AlertType = "no_recommendation"
)

const defaultMinRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinRuns <= 0 {
		cfg.MinRuns = defaultMinRuns
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Windows with fewer than MinRuns finished sessions never alert.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Completed + snap.Failed
	if finished < a.cfg.MinRuns {
		return nil
	}

	if a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Session failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.Completed >= a.cfg.MinRuns && snap.Unrecommended == snap.Completed {
		alerts = append(alerts, Alert{
			Type:     AlertNoRecommendation,
			Severity: "high",
			Message: fmt.Sprintf(
				"No provider produced shifts for any of %d completed sessions in last %dh",
				snap.Completed, snap.LookbackHours,
			),
			Details: map[string]any{
				"completed": snap.Completed,
			},
			Timestamp: now,
		})
	} else if a.cfg.ReviewRateThreshold > 0 && snap.Completed > 0 && snap.ReviewRate > a.cfg.ReviewRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of completed sessions need review, threshold %.1f%% (last %dh)",
				snap.ReviewRate*100, a.cfg.ReviewRateThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"review_rate":    snap.ReviewRate,
				"threshold":      a.cfg.ReviewRateThreshold,
				"needs_review":   snap.NeedsReview,
				"completed":      snap.Completed,
				"avg_confidence": snap.AvgConfidence,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notification is the webhook body for one check: the alerts raised and the
// snapshot that raised them.
type Notification struct {
	Alerts   []Alert   `json:"alerts"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Notify posts alerts to the configured webhook in a single request. It is a
// no-op without a webhook URL or alerts.
func (a *Alerter) Notify(ctx context.Context, snap *Snapshot, alerts []Alert) error {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(Notification{Alerts: alerts, Snapshot: snap})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
