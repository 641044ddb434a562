package schema

import (
	"sort"

	"caseexport/internal/config"
)

// Preset export types.
const (
	PresetFullHistory       = "full-history"
	PresetLinelistExposure  = "linelist-exposure"
	PresetLinelistIsolation = "linelist-isolation"
	PresetCustom            = "custom"
)

var linelistExposure = []string{
	"id", "name", IDStateLocal, "sex", "date_of_birth", "end_of_monitoring",
	"exposure_risk_assessment", "monitoring_plan", "latest_assessment_at",
	"transferred_from", "transferred_to", "latest_transfer_at",
	"public_health_action", "status", "symptom_onset",
}

var linelistIsolation = []string{
	"id", "name", IDStateLocal, "sex", "date_of_birth", "monitoring_plan",
	"latest_assessment_at", "transferred_from", "transferred_to",
	"latest_transfer_at", "symptom_onset", "extended_isolation", "status",
	"lab_1_type", "lab_1_specimen_collection", "lab_1_report", "lab_1_result",
	"lab_2_type", "lab_2_specimen_collection", "lab_2_report", "lab_2_result",
}

// Preset builds the export configuration for a named export type.
//
// The custom type has no preset; its configuration is supplied by the caller.
func Preset(exportType string) (config.Export, bool) {
	switch exportType {
	case PresetFullHistory:
		data := make(map[string]config.EntityData, entityCount)
		for _, e := range Entities() {
			data[e.Key()] = config.EntityData{Checked: ExportableNames(e)}
		}
		return config.Export{
			Format:     config.FormatXLSX,
			ExportType: exportType,
			Data:       data,
		}, true

	case PresetLinelistExposure:
		return linelist(exportType, linelistExposure), true

	case PresetLinelistIsolation:
		return linelist(exportType, linelistIsolation), true
	}
	return config.Export{}, false
}

// PresetNames lists the export types that have a preset.
func PresetNames() []string {
	out := []string{PresetFullHistory, PresetLinelistExposure, PresetLinelistIsolation}
	sort.Strings(out)
	return out
}

func linelist(exportType string, fields []string) config.Export {
	return config.Export{
		Format:     config.FormatCSV,
		ExportType: exportType,
		Data: map[string]config.EntityData{
			Patients.Key(): {Checked: append([]string(nil), fields...)},
		},
	}
}
