package record

import (
	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
)

// PatientInfo carries the administrative fields shown on reports. They are
// never part of the classifier input.
type PatientInfo struct {
	Name     string `json:"patient_name,omitempty"`
	Hospital string `json:"hospital_name,omitempty"`
	Lab      string `json:"lab_name,omitempty"`
	Date     string `json:"lab_date,omitempty"`
}

func PatientFrom(raw fields.RawMap) PatientInfo {
	return PatientInfo{
		Name:     raw[constants.PatientName],
		Hospital: raw[constants.HospitalName],
		Lab:      raw[constants.LabName],
		Date:     raw[constants.LabDate],
	}
}

// Pairs returns label/value pairs in constants.AdminFields order, with "N/A"
// for fields that were not found.
func (p PatientInfo) Pairs() [][2]string {
	vals := map[string]string{
		constants.PatientName:  p.Name,
		constants.HospitalName: p.Hospital,
		constants.LabName:      p.Lab,
		constants.LabDate:      p.Date,
	}
	out := make([][2]string, 0, len(constants.AdminFields()))
	for _, f := range constants.AdminFields() {
		v := vals[f]
		if v == "" {
			v = "N/A"
		}
		out = append(out, [2]string{f, v})
	}
	return out
}
