// Package features maps raw records onto the numeric matrices the
// learners consume. Every function is pure; missing fields take the
// defaults documented on each column set.
package features

import (
	"github.com/Aidin1998/modelserver/pkg/models"
)

// ComplianceColumns is the column order of compliance feature rows.
var ComplianceColumns = []string{
	"compliance_rate",
	"days_since_check",
	"regulation_count",
	"non_compliant_ratio",
	"pending_ratio",
	"alert_frequency",
}

// ExtractComplianceFeatures builds one row per record. Counts are
// normalised by total_count, which defaults to 1 and is never zero.
func ExtractComplianceFeatures(records []models.Record) [][]float64 {
	rows := make([][]float64, 0, len(records))
	for _, r := range records {
		total := r.Float("total_count", 1)
		if total == 0 {
			total = 1
		}
		rows = append(rows, []float64{
			r.Float("compliance_rate", 0),
			r.Float("days_since_check", 0),
			r.Float("regulation_count", 0),
			r.Float("non_compliant_count", 0) / total,
			r.Float("pending_count", 0) / total,
			r.Float("alert_count", 0),
		})
	}
	return rows
}

// ComplianceLabels reads the has_gap flag.
func ComplianceLabels(records []models.Record) []int {
	return labels(records, "has_gap")
}

// RegulatoryColumns is the column order of regulatory feature rows.
var RegulatoryColumns = []string{
	"change_frequency",
	"severity",
	"days_between_changes",
	"regulation_type",
}

// RegulationTypes is the fixed ordinal vocabulary for regulation_type.
// Types outside the vocabulary share the code len(RegulationTypes).
var RegulationTypes = []string{
	"data_privacy",
	"financial",
	"security",
	"healthcare",
	"environmental",
}

// EncodeRegulationType returns the ordinal code of a regulation type.
func EncodeRegulationType(t string) float64 {
	for i, known := range RegulationTypes {
		if known == t {
			return float64(i)
		}
	}
	return float64(len(RegulationTypes))
}

// ExtractRegulatoryFeatures builds one row per regulation record.
func ExtractRegulatoryFeatures(records []models.Record) [][]float64 {
	rows := make([][]float64, 0, len(records))
	for _, r := range records {
		rows = append(rows, []float64{
			r.Float("change_frequency", 0),
			r.Float("severity", 0),
			r.Float("days_between_changes", 0),
			EncodeRegulationType(r.String("regulation_type", "unknown")),
		})
	}
	return rows
}

// RegulatoryLabels reads the changed flag.
func RegulatoryLabels(records []models.Record) []int {
	return labels(records, "changed")
}

// DriftMetricKeys is the column order of behavioural drift vectors.
var DriftMetricKeys = []string{
	"compliance_score",
	"response_time",
	"error_rate",
	"throughput",
	"latency_p99",
}

// DriftVector projects an agent metric map onto DriftMetricKeys.
// Missing metrics read as 0.
func DriftVector(metrics map[string]float64) []float64 {
	v := make([]float64, len(DriftMetricKeys))
	for i, k := range DriftMetricKeys {
		v[i] = metrics[k]
	}
	return v
}

// DriftRows projects records onto DriftMetricKeys.
func DriftRows(records []models.Record) [][]float64 {
	rows := make([][]float64, 0, len(records))
	for _, r := range records {
		row := make([]float64, len(DriftMetricKeys))
		for i, k := range DriftMetricKeys {
			row[i] = r.Float(k, 0)
		}
		rows = append(rows, row)
	}
	return rows
}

func labels(records []models.Record, key string) []int {
	out := make([]int, len(records))
	for i, r := range records {
		if r.Bool(key) {
			out[i] = 1
		}
	}
	return out
}
