package config

import (
	"testing"

	"github.com/amidaware/patchcore/internal/model"
)

func TestWriteModeThenReadModeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	req := &model.Request{
		PatchMode:                    model.ModeAutomaticByPlatform,
		AssessmentMode:               model.ModeImageDefault,
		RawMaximumAssessmentInterval: "PT3H",
	}

	if err := WriteMode(dir, req); err != nil {
		t.Fatalf("WriteMode: %v", err)
	}

	pm, err := ReadMode(dir)
	if err != nil {
		t.Fatalf("ReadMode: %v", err)
	}
	if pm.PatchMode != model.ModeAutomaticByPlatform {
		t.Errorf("unexpected patchMode: %v", pm.PatchMode)
	}
	if pm.AssessmentMode != model.ModeImageDefault {
		t.Errorf("unexpected assessmentMode: %v", pm.AssessmentMode)
	}
	if pm.MaximumAssessmentInterval != "PT3H" {
		t.Errorf("unexpected maximumAssessmentInterval: %q", pm.MaximumAssessmentInterval)
	}
}
