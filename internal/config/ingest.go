// Package config implements Configuration Ingest (spec §4.H): it
// enumerates `*.settings` files in the host's config directory, selects the
// highest sequence number, and parses/validates it into a model.Request.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amidaware/patchcore/internal/model"
)

// HardCeilingInstallation is the upper bound on maximumDuration the core
// enforces regardless of what the host requests (spec §3 "upper-bounded by
// a hard ceiling (e.g. 4h)").
const HardCeilingInstallation = 4 * time.Hour

// maxStartTimeAge is how far in the past startTime may be before ingest
// refuses the request outright (spec §3 "values too far in the past abort
// with an explicit reason").
const maxStartTimeAge = 24 * time.Hour

// settingsFile is the raw on-disk shape of a `.settings` file. Every known
// field has a companion entry below; anything else falls into Unrecognized.
type settingsFile struct {
	Operation                 string   `json:"operation"`
	ActivityID                string   `json:"activityId"`
	StartTime                 string   `json:"startTime"`
	MaximumDuration           string   `json:"maximumDuration"`
	RebootSetting             string   `json:"rebootSetting"`
	ClassificationsToInclude  []string `json:"classificationsToInclude"`
	PatchesToInclude          []string `json:"patchesToInclude"`
	PatchesToExclude          []string `json:"patchesToExclude"`
	PatchMode                 string   `json:"patchMode"`
	AssessmentMode            string   `json:"assessmentMode"`
	MaximumAssessmentInterval string   `json:"maximumAssessmentInterval"`
}

var knownFields = map[string]bool{
	"operation": true, "activityId": true, "startTime": true,
	"maximumDuration": true, "rebootSetting": true,
	"classificationsToInclude": true, "patchesToInclude": true, "patchesToExclude": true,
	"patchMode": true, "assessmentMode": true, "maximumAssessmentInterval": true,
}

// Candidate is one discovered `.settings` file, named by its sequence
// number.
type Candidate struct {
	SequenceNumber int
	Path           string
}

// Discover enumerates `*.settings` files in dir and returns them sorted by
// ascending sequence number. The file with the highest sequence number wins
// (spec §6); Highest picks it for you.
func Discover(dir string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "failed to read config directory")
	}

	var out []Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".settings") {
			continue
		}
		prefix := strings.TrimSuffix(name, ".settings")
		seq, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		out = append(out, Candidate{SequenceNumber: seq, Path: filepath.Join(dir, name)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// Highest returns the candidate with the largest sequence number, or false
// if dir has no `.settings` files.
func Highest(dir string) (Candidate, bool, error) {
	candidates, err := Discover(dir)
	if err != nil {
		return Candidate{}, false, err
	}
	if len(candidates) == 0 {
		return Candidate{}, false, nil
	}
	return candidates[len(candidates)-1], true, nil
}

// Ingest reads and validates the `.settings` file at path, producing a
// Request or a structured ConfigurationError (never a bare error), per
// spec §4.H.
func Ingest(path string, sequenceNumber int, now time.Time) (*model.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "failed to read settings file")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "settings file is not valid JSON")
	}

	var sf settingsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "settings file does not match the expected schema")
	}

	unrecognized := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownFields[k] {
			unrecognized[k] = v
		}
	}

	req := &model.Request{
		Operation:                    model.Operation(sf.Operation),
		ActivityID:                   sf.ActivityID,
		RebootSetting:                model.RebootSetting(sf.RebootSetting),
		PatchesToInclude:             sf.PatchesToInclude,
		PatchesToExclude:             sf.PatchesToExclude,
		PatchMode:                    model.PatchMode(sf.PatchMode),
		AssessmentMode:               model.PatchMode(sf.AssessmentMode),
		RawMaximumDuration:           sf.MaximumDuration,
		RawMaximumAssessmentInterval: sf.MaximumAssessmentInterval,
		Unrecognized:                 unrecognized,
		SequenceNumber:               sequenceNumber,
	}

	for _, c := range sf.ClassificationsToInclude {
		req.ClassificationsToInclude = append(req.ClassificationsToInclude, model.Classification(c))
	}

	if err := parseAndValidate(req, sf, now); err != nil {
		return nil, err
	}

	return req, nil
}

func parseAndValidate(req *model.Request, sf settingsFile, now time.Time) error {
	if req.Operation == "" {
		return model.New(model.KindConfigurationError, "operation is required")
	}
	switch req.Operation {
	case model.OperationAssessment, model.OperationInstallation, model.OperationConfigurePatching, model.OperationNoOperation:
	default:
		return model.New(model.KindConfigurationError, "unrecognized operation: "+string(req.Operation))
	}

	if req.ActivityID == "" {
		return model.New(model.KindConfigurationError, "activityId is required")
	}

	if sf.StartTime == "" {
		return model.New(model.KindConfigurationError, "startTime is required")
	}
	startTime, err := time.Parse(time.RFC3339, sf.StartTime)
	if err != nil {
		return model.Wrap(model.KindConfigurationError, err, "startTime is not a valid UTC instant")
	}
	if startTime.Before(now.Add(-maxStartTimeAge)) {
		return model.New(model.KindConfigurationError, "startTime is too far in the past")
	}
	req.StartTime = startTime

	if req.Operation == model.OperationInstallation {
		if sf.MaximumDuration == "" {
			return model.New(model.KindConfigurationError, "maximumDuration is required for Installation")
		}
		d, err := model.ParseISO8601Duration(sf.MaximumDuration)
		if err != nil {
			return model.Wrap(model.KindConfigurationError, err, "maximumDuration is not a valid ISO-8601 duration")
		}
		if d > HardCeilingInstallation {
			d = HardCeilingInstallation
		}
		req.MaximumDuration = d

		switch req.RebootSetting {
		case model.RebootIfRequired, model.RebootNever, model.RebootAlways:
		default:
			return model.New(model.KindConfigurationError, "rebootSetting is required for Installation")
		}
	}

	if err := validateClassifications(req.ClassificationsToInclude); err != nil {
		return err
	}

	if sf.MaximumAssessmentInterval != "" {
		d, err := model.ParseISO8601Duration(sf.MaximumAssessmentInterval)
		if err != nil {
			return model.Wrap(model.KindConfigurationError, err, "maximumAssessmentInterval is not a valid ISO-8601 duration")
		}
		req.MaximumAssessmentInterval = d
	}

	return nil
}

// validateClassifications enforces spec §3: "Critical and Security must
// appear together or not at all; Other is independent."
func validateClassifications(classifications []model.Classification) error {
	var hasCritical, hasSecurity bool
	for _, c := range classifications {
		switch c {
		case model.ClassificationCritical:
			hasCritical = true
		case model.ClassificationSecurity:
			hasSecurity = true
		case model.ClassificationOther:
		default:
			return model.New(model.KindConfigurationError, "unrecognized classification: "+string(c))
		}
	}
	if hasCritical != hasSecurity {
		return model.New(model.KindConfigurationError, "classificationsToInclude: Critical and Security must appear together or not at all")
	}
	return nil
}
