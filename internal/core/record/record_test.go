package record

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
)

func TestFromRawTotality(t *testing.T) {
	inputs := []fields.RawMap{
		nil,
		{},
		{constants.Glucose: "95"},
		{"Unknown Field": "1", constants.Gender: "Male"},
	}
	for _, raw := range inputs {
		r := FromRaw(raw)
		if diff := cmp.Diff(constants.ModelFeatures(), r.Columns()); diff != "" {
			t.Fatalf("columns (-want +got):\n%s", diff)
		}
		for _, v := range r.Values {
			if v.Categorical != constants.IsCategorical(v.Name) {
				t.Errorf("%q: categorical=%v", v.Name, v.Categorical)
			}
		}
	}
}

func TestFromRawEmptyIsAllDefaults(t *testing.T) {
	r := FromRaw(fields.RawMap{})
	for _, f := range r.Row() {
		if f != 0 {
			t.Fatalf("row = %v, want all zeros", r.Row())
		}
	}
	if len(r.Defaults) != len(constants.ModelFeatures()) {
		t.Errorf("defaults = %d, want %d", len(r.Defaults), len(constants.ModelFeatures()))
	}
	for _, d := range r.Defaults {
		if d.Reason != ReasonMissing {
			t.Errorf("%q reason = %s", d.Field, d.Reason)
		}
	}
}

func TestFromRawValues(t *testing.T) {
	tests := []struct {
		name      string
		raw       fields.RawMap
		field     string
		wantFloat float64
		reason    Reason // "" means not defaulted
	}{
		{"bmi exact", fields.RawMap{constants.BMI: "24.7"}, constants.BMI, 24.7, ""},
		{"integer age", fields.RawMap{constants.Age: "45"}, constants.Age, 45, ""},
		{"missing glucose", fields.RawMap{}, constants.Glucose, 0, ReasonMissing},
		{"unparsable dots", fields.RawMap{constants.Glucose: "1.2.3"}, constants.Glucose, 0, ReasonUnparsable},
		{"lone dot", fields.RawMap{constants.Creatinine: "."}, constants.Creatinine, 0, ReasonUnparsable},
		{"nan rejected", fields.RawMap{constants.HDL: "NaN"}, constants.HDL, 0, ReasonUnparsable},
		{"male", fields.RawMap{constants.Gender: "Male"}, constants.Gender, 1, ""},
		{"female", fields.RawMap{constants.Gender: "Female"}, constants.Gender, 0, ""},
		{"unknown gender", fields.RawMap{constants.Gender: "Unknown"}, constants.Gender, 0, ReasonUnrecognized},
		{"comorbidity yes", fields.RawMap{constants.Comorbidity: "Yes"}, constants.Comorbidity, 1, ""},
		{"dm no", fields.RawMap{constants.DiabetesMellitus: "No"}, constants.DiabetesMellitus, 0, ""},
		{"dm lowercase", fields.RawMap{constants.DiabetesMellitus: "yes"}, constants.DiabetesMellitus, 0, ReasonUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromRaw(tt.raw)
			if got := r.Float(tt.field); got != tt.wantFloat {
				t.Errorf("Float(%q) = %v, want %v", tt.field, got, tt.wantFloat)
			}
			var got Reason
			for _, d := range r.Defaults {
				if d.Field == tt.field {
					got = d.Reason
				}
			}
			if got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
			if r.Defaulted(tt.field) != (tt.reason != "") {
				t.Errorf("Defaulted(%q) = %v", tt.field, r.Defaulted(tt.field))
			}
		})
	}
}

func TestCategoricalInt(t *testing.T) {
	r := FromRaw(fields.RawMap{constants.Gender: "Male", constants.Comorbidity: "Yes"})
	if r.Int(constants.Gender) != 1 || r.Int(constants.Comorbidity) != 1 || r.Int(constants.DiabetesMellitus) != 0 {
		t.Errorf("codes = %d %d %d", r.Int(constants.Gender), r.Int(constants.Comorbidity), r.Int(constants.DiabetesMellitus))
	}
}

func TestFrame(t *testing.T) {
	r := FromRaw(fields.RawMap{constants.Age: "45", constants.VitaminD: "30.5"})
	f := r.Frame()
	if len(f.Data) != 1 || len(f.Data[0]) != len(f.Columns) {
		t.Fatalf("frame shape %d x %d", len(f.Data), len(f.Columns))
	}
	if f.Data[0][0] != 45 || f.Data[0][len(f.Columns)-1] != 30.5 {
		t.Errorf("row = %v", f.Data[0])
	}
}

func TestJSONRoundTripKeepsOrderAndTypes(t *testing.T) {
	r := FromRaw(fields.RawMap{constants.Age: "45", constants.Gender: "Male", constants.BMI: "24.7"})
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"Age":45,"Gender":1,"Comorbidity":0,`
	if string(b[:len(want)]) != want {
		t.Errorf("json prefix = %s", b[:len(want)])
	}

	var back Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r.Values, back.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	good := FromRaw(fields.RawMap{constants.Gender: "Female", constants.Glucose: "95"})
	if err := Validate(good); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}

	precise := FromRaw(fields.RawMap{constants.Glucose: "95.123456789012345", constants.Age: "52"})
	if err := Validate(precise); err != nil {
		t.Fatalf("Validate(precise) = %v", err)
	}

	bad := FromRaw(fields.RawMap{})
	bad.Values[1].Code = 7
	if err := Validate(bad); !errors.Is(err, common.ErrValidation) {
		t.Errorf("out-of-range code: err = %v", err)
	}

	short := Record{Values: good.Values[:10]}
	if err := Validate(short); !errors.Is(err, common.ErrValidation) {
		t.Errorf("missing columns: err = %v", err)
	}
}

func TestPatientFrom(t *testing.T) {
	p := PatientFrom(fields.RawMap{constants.PatientName: "Jane Doe", constants.LabName: "Central"})
	want := [][2]string{
		{constants.PatientName, "Jane Doe"},
		{constants.HospitalName, "N/A"},
		{constants.LabName, "Central"},
		{constants.LabDate, "N/A"},
	}
	if diff := cmp.Diff(want, p.Pairs()); diff != "" {
		t.Errorf("pairs (-want +got):\n%s", diff)
	}
}
