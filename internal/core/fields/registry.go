// Package fields holds the label pattern registry and the extractor that
// applies it to normalized OCR text.
package fields

import (
	"fmt"
	"regexp"

	"github.com/joseph-ayodele/labscan/constants"
)

// ValueKind is the shape of the value a rule captures.
type ValueKind int

const (
	KindDecimal ValueKind = iota
	KindInteger
	KindEnum
	KindText
	KindDate
)

func (k ValueKind) String() string {
	switch k {
	case KindDecimal:
		return "decimal"
	case KindInteger:
		return "integer"
	case KindEnum:
		return "enum"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Rule maps one canonical field name to the pattern that locates its value.
// Pattern has exactly one capture group.
type Rule struct {
	Field   string
	Kind    ValueKind
	Pattern *regexp.Regexp
}

const (
	sep     = `\s*:\s*`
	decimal = `([\d.]+)`
	integer = `(\d+)`
	word    = `(\w+)`
)

func rule(field string, kind ValueKind, expr string) Rule {
	re := regexp.MustCompile(expr)
	if n := re.NumSubexp(); n != 1 {
		panic(fmt.Sprintf("fields: rule %q has %d capture groups, want 1", field, n))
	}
	return Rule{Field: field, Kind: kind, Pattern: re}
}

func num(field, label string) Rule {
	return rule(field, KindDecimal, label+sep+decimal)
}

var registry = []Rule{
	// administrative
	rule(constants.HospitalName, KindText, `Hospital(?: Name)?`+sep+`(.+)`),
	rule(constants.LabName, KindText, `Lab Name`+sep+`(.+)`),
	rule(constants.PatientName, KindText, `(?m)^(?:Patient )?Name`+sep+`(.+)`),
	rule(constants.LabDate, KindDate, `Date`+sep+`(\w+ \d{1,2}, \d{4}|\d{4}-\d{2}-\d{2})`),

	// demographics
	rule(constants.Gender, KindEnum, `Gender`+sep+`(Male|Female)`),
	rule(constants.Age, KindInteger, `Age`+sep+integer),
	rule(constants.Comorbidity, KindEnum, `Comorbidity`+sep+word),
	rule(constants.DiabetesMellitus, KindEnum, `Diabetes Mellitus \(DM\)`+sep+word),

	// body composition
	num(constants.BMI, `Body Mass Index \(BMI\)`),
	rule(constants.Height, KindInteger, `Height`+sep+integer),
	num(constants.Weight, `Weight`),
	num(constants.TotalBodyWater, `Total Body Water \(TBW\)`),
	num(constants.ExtracellularWater, `Extracellular Water \(ECW\)`),
	num(constants.IntracellularWater, `Intracellular Water \(ICW\)`),
	num(constants.ECFToTBW, `Extracellular Fluid/Total Body Water \(ECF/TBW\)`),
	rule(constants.TotalBodyFatRatio, KindDecimal, `Total Body Fat Ratio \(TBFR\)`+sep+decimal+`%`),
	rule(constants.LeanMass, KindDecimal, `Lean Mass \(LM\)`+sep+decimal+`%`),
	rule(constants.BodyProteinContent, KindDecimal, `Body Protein Content`+sep+decimal+`%`),
	num(constants.VisceralFatRating, `Visceral Fat Rating \(VFR\)`),
	rule(constants.BoneMass, KindDecimal, `Bone Mass`+sep+decimal+`\s*kg`),
	rule(constants.MuscleMass, KindDecimal, `Muscle Mass \(MM\)`+sep+decimal+`\s*kg`),
	rule(constants.Obesity, KindDecimal, `Obesity`+sep+decimal+`%`),
	num(constants.TotalFatContent, `Total Fat Content \(TFC\)`),
	num(constants.VisceralFatArea, `Visceral Fat Area \(VFA\)`),
	num(constants.VisceralMuscleArea, `Visceral Muscle Area \(VMA\)`),
	num(constants.HepaticFat, `Hepatic Fat Accumulation \(HFA\)`),

	// laboratory
	num(constants.Glucose, `Glucose`),
	num(constants.TotalCholesterol, `Total Cholesterol \(TC\)`),
	num(constants.LDL, `Low Density Lipoprotein \(LDL\)`),
	num(constants.HDL, `High Density Lipoprotein \(HDL\)`),
	num(constants.Triglyceride, `Triglyceride`),
	num(constants.AST, `AST`),
	num(constants.ALT, `ALT`),
	num(constants.ALP, `ALP`),
	num(constants.Creatinine, `Creatinine`),
	num(constants.GFR, `GFR`),
	num(constants.CRP, `C-Reactive Protein \(CRP\)`),
	num(constants.Hemoglobin, `Hemoglobin \(HGB\)`),
	num(constants.VitaminD, `Vitamin D`),
}

// Rules returns the registry in declaration order. The slice is a copy;
// the compiled patterns are shared and safe for concurrent use.
func Rules() []Rule {
	out := make([]Rule, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the rule for a canonical field name.
func Lookup(field string) (Rule, bool) {
	for _, r := range registry {
		if r.Field == field {
			return r, true
		}
	}
	return Rule{}, false
}
