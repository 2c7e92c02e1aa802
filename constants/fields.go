package constants

import "slices"

// Canonical field names. These are the exact column names the classifier was
// fit against, so they must not be reworded.
const (
	Age                = "Age"
	Gender             = "Gender"
	Comorbidity        = "Comorbidity"
	DiabetesMellitus   = "Diabetes Mellitus (DM)"
	Height             = "Height (cm)"
	Weight             = "Weight (kg)"
	BMI                = "Body Mass Index (BMI)"
	TotalBodyWater     = "Total Body Water (TBW)"
	ExtracellularWater = "Extracellular Water (ECW)"
	IntracellularWater = "Intracellular Water (ICW)"
	ECFToTBW           = "Extracellular Fluid/Total Body Water (ECF/TBW)"
	TotalBodyFatRatio  = "Total Body Fat Ratio (TBFR) (%)"
	LeanMass           = "Lean Mass (%)"
	BodyProteinContent = "Body Protein Content (%)"
	VisceralFatRating  = "Visceral Fat Rating (VFR)"
	BoneMass           = "Bone Mass (BM)"
	MuscleMass         = "Muscle Mass (MM)"
	Obesity            = "Obesity (%)"
	TotalFatContent    = "Total Fat Content (TFC)"
	VisceralFatArea    = "Visceral Fat Area (VFA)"
	VisceralMuscleArea = "Visceral Muscle Area (VMA)"
	HepaticFat         = "Hepatic Fat Accumulation (HFA)"
	Glucose            = "Glucose"
	TotalCholesterol   = "Total Cholesterol (TC)"
	LDL                = "Low Density Lipoprotein (LDL)"
	HDL                = "High Density Lipoprotein (HDL)"
	Triglyceride       = "Triglyceride"
	AST                = "Aspartat Aminotransferaz (AST)"
	ALT                = "Alanin Aminotransferaz (ALT)"
	ALP                = "Alkaline Phosphatase (ALP)"
	Creatinine         = "Creatinine"
	GFR                = "Glomerular Filtration Rate (GFR)"
	CRP                = "C-Reactive Protein (CRP)"
	Hemoglobin         = "Hemoglobin (HGB)"
	VitaminD           = "Vitamin D"
)

// Administrative fields extracted alongside the clinical ones. They never
// reach the classifier.
const (
	HospitalName = "Hospital Name"
	LabName      = "Lab Name"
	PatientName  = "Patient Name"
	LabDate      = "Lab Date"
)

// modelFeatures is the classifier input schema, in column order.
var modelFeatures = []string{
	Age, Gender, Comorbidity, DiabetesMellitus, Height, Weight,
	BMI, TotalBodyWater, ExtracellularWater,
	IntracellularWater, ECFToTBW,
	TotalBodyFatRatio, LeanMass, BodyProteinContent,
	VisceralFatRating, BoneMass, MuscleMass, Obesity,
	TotalFatContent, VisceralFatArea, VisceralMuscleArea,
	HepaticFat, Glucose, TotalCholesterol,
	LDL, HDL, Triglyceride,
	AST, ALT,
	ALP, Creatinine, GFR,
	CRP, Hemoglobin, VitaminD,
}

// categoricalFeatures lists the schema columns that are encoded as small
// integers rather than floats.
var categoricalFeatures = map[string]struct{}{
	Gender:           {},
	Comorbidity:      {},
	DiabetesMellitus: {},
}

var adminFields = []string{PatientName, HospitalName, LabName, LabDate}

// ModelFeatures returns a copy of the classifier input schema, in column order.
func ModelFeatures() []string { return slices.Clone(modelFeatures) }

// AdminFields returns a copy of the administrative fields in report order.
func AdminFields() []string { return slices.Clone(adminFields) }

// IsCategorical reports whether name is one of the integer-encoded columns.
func IsCategorical(name string) bool {
	_, ok := categoricalFeatures[name]
	return ok
}
