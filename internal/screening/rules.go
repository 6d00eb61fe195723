package screening

const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

var (
	aceInhibitorClass   = []string{"lisinopril", "enalapril", "ramipril", "captopril", "benazepril"}
	anticoagulantClass  = []string{"warfarin", "apixaban", "rivaroxaban", "dabigatran", "heparin"}
	antiplateletClass   = []string{"aspirin", "clopidogrel", "ticagrelor"}
	nsaidClass          = []string{"ibuprofen", "naproxen", "diclofenac", "celecoxib"}
	potassiumSparingCls = []string{"spironolactone", "eplerenone", "amiloride", "triamterene"}
	betaBlockerClass    = []string{"metoprolol", "atenolol", "propranolol", "bisoprolol", "carvedilol"}

	drugClasses = map[string][]string{
		"aceInhibitors":    aceInhibitorClass,
		"anticoagulants":   anticoagulantClass,
		"antiplatelets":    antiplateletClass,
		"nsaids":           nsaidClass,
		"potassiumSparing": potassiumSparingCls,
		"betaBlockers":     betaBlockerClass,
	}

	ruleDB = []Rule{
		{ID: "anticoag+antiplatelet", Type: "interaction", Severity: SeverityHigh, Match: RuleMatch{DrugClassA: "anticoagulants", DrugClassB: "antiplatelets"}, Note: "Combined bleeding risk; confirm indication and monitor closely."},
		{ID: "ace+potassium", Type: "interaction", Severity: SeverityMedium, Match: RuleMatch{DrugClassA: "aceInhibitors", DrugClassB: "potassiumSparing"}, Note: "Hyperkalemia risk; check serum potassium."},
		{ID: "ace+nsaid", Type: "interaction", Severity: SeverityMedium, Match: RuleMatch{DrugClassA: "aceInhibitors", DrugClassB: "nsaids"}, Note: "Reduced antihypertensive effect and renal risk."},
		{ID: "kidney+nsaid", Type: "condition", Severity: SeverityMedium, Match: RuleMatch{Condition: "kidney disease", RequiresDrugClass: "nsaids"}, Note: "NSAIDs worsen renal function; prefer alternatives."},
		{ID: "asthma+betablocker", Type: "condition", Severity: SeverityMedium, Match: RuleMatch{Condition: "asthma", RequiresDrugClass: "betaBlockers"}, Note: "Non-selective beta blockers may trigger bronchospasm."},
		{ID: "epilepsy", Type: "condition", Severity: SeverityMedium, Match: RuleMatch{Condition: "epilepsy"}, Note: "Correlate EEG anomalies with seizure history."},
		{ID: "heart disease", Type: "condition", Severity: SeverityMedium, Match: RuleMatch{Condition: "heart disease"}, Note: "Assess ECG changes against cardiac history."},
		{ID: "diabetes", Type: "condition", Severity: SeverityLow, Match: RuleMatch{Condition: "diabetes"}, Note: "Elevated cardiovascular baseline risk."},
	}

	severityWeight = map[string]int{
		SeverityHigh:   40,
		SeverityMedium: 20,
		SeverityLow:    10,
	}
)

type Rule struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"` // interaction|condition
	Severity string    `json:"severity"`
	Match    RuleMatch `json:"match"`
	Note     string    `json:"note"`
}

type RuleMatch struct {
	DrugClassA        string `json:"drugClassA"`
	DrugClassB        string `json:"drugClassB"`
	Condition         string `json:"condition"`
	RequiresDrugClass string `json:"requiresDrugClass"`
}

// threshold flags a vital sign outside [Min, Max). Zero bounds are open.
type threshold struct {
	Factor   string
	Severity string
	Min      float64
	Max      float64
	Note     string
}

var (
	systolicRules = []threshold{
		{Factor: "Hypertensive crisis", Severity: SeverityHigh, Min: 180, Note: "Systolic pressure at or above 180 mmHg; seek urgent care."},
		{Factor: "Stage 2 hypertension", Severity: SeverityMedium, Min: 140, Max: 180, Note: "Systolic pressure elevated; review antihypertensive therapy."},
		{Factor: "Hypotension", Severity: SeverityMedium, Max: 90, Note: "Systolic pressure below 90 mmHg."},
	}
	diastolicRules = []threshold{
		{Factor: "Diastolic crisis", Severity: SeverityHigh, Min: 110, Note: "Diastolic pressure at or above 110 mmHg."},
		{Factor: "Elevated diastolic", Severity: SeverityMedium, Min: 90, Max: 110, Note: "Diastolic pressure elevated."},
	}
	heartRateRules = []threshold{
		{Factor: "Severe tachycardia", Severity: SeverityHigh, Min: 130, Note: "Resting heart rate above 130 bpm."},
		{Factor: "Tachycardia", Severity: SeverityMedium, Min: 100, Max: 130, Note: "Resting heart rate above 100 bpm."},
		{Factor: "Bradycardia", Severity: SeverityMedium, Max: 50, Note: "Resting heart rate below 50 bpm."},
	}
	oxygenRules = []threshold{
		{Factor: "Hypoxemia", Severity: SeverityHigh, Max: 90, Note: "Oxygen saturation below 90%."},
		{Factor: "Low oxygen saturation", Severity: SeverityMedium, Min: 90, Max: 94, Note: "Oxygen saturation below 94%."},
	}
	temperatureRules = []threshold{
		{Factor: "High fever", Severity: SeverityHigh, Min: 39.5, Note: "Temperature at or above 39.5°C."},
		{Factor: "Fever", Severity: SeverityLow, Min: 38, Max: 39.5, Note: "Temperature at or above 38°C."},
		{Factor: "Hypothermia", Severity: SeverityHigh, Max: 35, Note: "Temperature below 35°C."},
	}
	respiratoryRules = []threshold{
		{Factor: "Tachypnea", Severity: SeverityMedium, Min: 24, Note: "Respiratory rate above 24 breaths/min."},
		{Factor: "Bradypnea", Severity: SeverityMedium, Max: 10, Note: "Respiratory rate below 10 breaths/min."},
	}
)

func (th threshold) matches(v float64) bool {
	if th.Min != 0 && v < th.Min {
		return false
	}
	if th.Max != 0 && v >= th.Max {
		return false
	}
	return true
}
