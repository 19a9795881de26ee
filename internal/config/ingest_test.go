package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amidaware/patchcore/internal/model"
)

func writeSettings(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writeSettings: %v", err)
	}
}

func TestHighestPicksLargestSequenceNumber(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "1.settings", "{}")
	writeSettings(t, dir, "10.settings", "{}")
	writeSettings(t, dir, "2.settings", "{}")
	writeSettings(t, dir, "notes.txt", "ignore me")

	c, ok, err := Highest(dir)
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.SequenceNumber != 10 {
		t.Errorf("expected sequence 10, got %d", c.SequenceNumber)
	}
}

func TestIngestValidInstallation(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	content := `{
		"operation": "Installation",
		"activityId": "act-123",
		"startTime": "` + now.Format(time.RFC3339) + `",
		"maximumDuration": "PT2H",
		"rebootSetting": "IfRequired",
		"classificationsToInclude": ["Critical", "Security"],
		"patchesToInclude": ["openssl*"],
		"somethingNew": "preserved"
	}`
	writeSettings(t, dir, "5.settings", content)

	req, err := Ingest(filepath.Join(dir, "5.settings"), 5, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Operation != model.OperationInstallation {
		t.Errorf("unexpected operation: %v", req.Operation)
	}
	if req.MaximumDuration != 2*time.Hour {
		t.Errorf("unexpected maximumDuration: %v", req.MaximumDuration)
	}
	if _, ok := req.Unrecognized["somethingNew"]; !ok {
		t.Error("expected unrecognized field to be preserved")
	}
	if req.SequenceNumber != 5 {
		t.Errorf("unexpected sequence number: %d", req.SequenceNumber)
	}
}

func TestIngestMissingMaximumDurationForInstallation(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	content := `{
		"operation": "Installation",
		"activityId": "act-1",
		"startTime": "` + now.Format(time.RFC3339) + `",
		"rebootSetting": "Never"
	}`
	writeSettings(t, dir, "1.settings", content)

	_, err := Ingest(filepath.Join(dir, "1.settings"), 1, now)
	if !model.AsKind(err, model.KindConfigurationError) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestIngestHardCeilingCapsMaximumDuration(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	content := `{
		"operation": "Installation",
		"activityId": "act-1",
		"startTime": "` + now.Format(time.RFC3339) + `",
		"maximumDuration": "PT8H",
		"rebootSetting": "Never"
	}`
	writeSettings(t, dir, "1.settings", content)

	req, err := Ingest(filepath.Join(dir, "1.settings"), 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.MaximumDuration != HardCeilingInstallation {
		t.Errorf("expected duration capped to %v, got %v", HardCeilingInstallation, req.MaximumDuration)
	}
}

func TestIngestCriticalWithoutSecurityIsInvalid(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	content := `{
		"operation": "Assessment",
		"activityId": "act-1",
		"startTime": "` + now.Format(time.RFC3339) + `",
		"classificationsToInclude": ["Critical"]
	}`
	writeSettings(t, dir, "1.settings", content)

	_, err := Ingest(filepath.Join(dir, "1.settings"), 1, now)
	if !model.AsKind(err, model.KindConfigurationError) {
		t.Fatalf("expected ConfigurationError for lone Critical classification, got %v", err)
	}
}

func TestIngestStartTimeTooFarInPast(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	past := now.Add(-72 * time.Hour)
	content := `{
		"operation": "Assessment",
		"activityId": "act-1",
		"startTime": "` + past.Format(time.RFC3339) + `"
	}`
	writeSettings(t, dir, "1.settings", content)

	_, err := Ingest(filepath.Join(dir, "1.settings"), 1, now)
	if !model.AsKind(err, model.KindConfigurationError) {
		t.Fatalf("expected ConfigurationError for stale startTime, got %v", err)
	}
}

func TestIngestMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "1.settings", "{not json")

	_, err := Ingest(filepath.Join(dir, "1.settings"), 1, time.Now())
	if !model.AsKind(err, model.KindConfigurationError) {
		t.Fatalf("expected ConfigurationError for malformed JSON, got %v", err)
	}
}
