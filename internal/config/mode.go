package config

import (
	"github.com/spf13/viper"

	"github.com/amidaware/patchcore/internal/model"
)

const modeFileName = "patch-mode.json"

// PersistedMode is what ConfigurePatching writes to the handler-state
// directory (spec §6 "Configuration-mode file"), consumed by the
// out-of-scope automatic-assessment timer collaborator.
type PersistedMode struct {
	PatchMode                 model.PatchMode `mapstructure:"patchMode"`
	AssessmentMode             model.PatchMode `mapstructure:"assessmentMode"`
	MaximumAssessmentInterval string          `mapstructure:"maximumAssessmentInterval"`
}

// WriteMode persists req's patching-mode fields to <handlerStateDir>/patch-mode.json
// using viper, grounded on the teacher's agent/tactical/config use of viper
// for its own on-disk settings file.
func WriteMode(handlerStateDir string, req *model.Request) error {
	v := viper.New()
	v.SetConfigType("json")
	v.Set("patchMode", string(req.PatchMode))
	v.Set("assessmentMode", string(req.AssessmentMode))
	v.Set("maximumAssessmentInterval", req.RawMaximumAssessmentInterval)

	path := handlerStateDir + "/" + modeFileName
	if err := v.WriteConfigAs(path); err != nil {
		return model.Wrap(model.KindConfigurationError, err, "failed to persist patch mode file")
	}
	return nil
}

// ReadMode reads back a previously persisted mode file, for diagnostics and
// tests. Consumed by internal/diag, not by the Orchestrator's own flow
// (spec §6 says a separate, out-of-scope timer collaborator reads it).
func ReadMode(handlerStateDir string) (*PersistedMode, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(handlerStateDir + "/" + modeFileName)
	if err := v.ReadInConfig(); err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "failed to read patch mode file")
	}
	var pm PersistedMode
	if err := v.Unmarshal(&pm); err != nil {
		return nil, model.Wrap(model.KindConfigurationError, err, "failed to unmarshal patch mode file")
	}
	return &pm, nil
}
