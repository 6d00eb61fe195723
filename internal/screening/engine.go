package screening

import (
	"fmt"
	"strconv"
	"strings"
)

// Vitals are spot readings. Zero means not measured.
type Vitals struct {
	HeartRate        float64 `json:"heartRate"`
	BPSystolic       float64 `json:"bpSystolic"`
	BPDiastolic      float64 `json:"bpDiastolic"`
	Temperature      float64 `json:"temperature"`
	OxygenSaturation float64 `json:"oxygenSaturation"`
	RespiratoryRate  float64 `json:"respiratoryRate"`
}

type Input struct {
	Vitals      Vitals
	Conditions  []string
	Medications []string
}

type Finding struct {
	Category string `json:"category"` // vital|interaction|condition
	Factor   string `json:"factor"`
	Severity string `json:"severity"`
	Note     string `json:"note"`
}

type Result struct {
	RiskScore int       `json:"riskScore"`
	RiskLevel string    `json:"riskLevel"`
	Findings  []Finding `json:"findings"`
	Issues    []string  `json:"issues"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
}

// Evaluate scores spot vitals, conditions and medications into a risk level.
func Evaluate(in Input) Result {
	meds := normalizeList(in.Medications)
	conditions := normalizeList(in.Conditions)

	findings := []Finding{}
	findings = append(findings, checkVital(in.Vitals.BPSystolic, systolicRules)...)
	findings = append(findings, checkVital(in.Vitals.BPDiastolic, diastolicRules)...)
	findings = append(findings, checkVital(in.Vitals.HeartRate, heartRateRules)...)
	findings = append(findings, checkVital(in.Vitals.OxygenSaturation, oxygenRules)...)
	findings = append(findings, checkVital(in.Vitals.Temperature, temperatureRules)...)
	findings = append(findings, checkVital(in.Vitals.RespiratoryRate, respiratoryRules)...)

	for _, rule := range ruleDB {
		switch rule.Type {
		case "interaction":
			if hasClassTokenByName(meds, rule.Match.DrugClassA) && hasClassTokenByName(meds, rule.Match.DrugClassB) {
				findings = append(findings, Finding{
					Category: "interaction",
					Factor:   fmt.Sprintf("%s+%s", rule.Match.DrugClassA, rule.Match.DrugClassB),
					Severity: rule.Severity,
					Note:     rule.Note,
				})
			}
		case "condition":
			condMatch := rule.Match.Condition != "" && containsString(conditions, rule.Match.Condition)
			drugMatch := rule.Match.RequiresDrugClass == "" || hasClassTokenByName(meds, rule.Match.RequiresDrugClass)
			if condMatch && drugMatch {
				findings = append(findings, Finding{
					Category: "condition",
					Factor:   rule.Match.Condition,
					Severity: rule.Severity,
					Note:     rule.Note,
				})
			}
		}
	}

	maxSeverity := ""
	score := 5
	for _, f := range findings {
		score += severityWeight[f.Severity]
		if f.Severity == SeverityHigh || (f.Severity == SeverityMedium && maxSeverity != SeverityHigh) {
			maxSeverity = f.Severity
		}
	}
	if score > 100 {
		score = 100
	}

	riskLevel := SeverityLow
	if maxSeverity == SeverityHigh || score >= 60 {
		riskLevel = SeverityHigh
	} else if maxSeverity == SeverityMedium || score >= 30 {
		riskLevel = SeverityMedium
	}

	issues := []string{}
	for _, f := range findings {
		issues = append(issues, fmt.Sprintf("[%s] %s: %s - %s", f.Severity, categoryLabel[f.Category], f.Factor, f.Note))
	}
	if len(issues) == 0 {
		issues = append(issues, "None")
	}

	result := Result{
		RiskScore: score,
		RiskLevel: riskLevel,
		Findings:  findings,
		Issues:    issues,
		Source:    "rules",
	}
	if len(findings) == 0 {
		result.RiskScore = 12
	}
	result.Summary = summarize(result)
	return result
}

var categoryLabel = map[string]string{
	"vital":       "Vital",
	"interaction": "Interaction",
	"condition":   "Condition",
}

func summarize(r Result) string {
	if len(r.Findings) == 0 {
		return fmt.Sprintf("Risk level %s (score %d). No concerning readings, interactions or condition flags found. Continue routine monitoring.", r.RiskLevel, r.RiskScore)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Risk level %s (score %d). %d finding(s):", r.RiskLevel, r.RiskScore, len(r.Findings))
	for _, issue := range r.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

func checkVital(value float64, rules []threshold) []Finding {
	if value <= 0 {
		return nil
	}
	for _, th := range rules {
		if th.matches(value) {
			return []Finding{{Category: "vital", Factor: th.Factor, Severity: th.Severity, Note: th.Note}}
		}
	}
	return nil
}

// VitalsFromMap reads loosely typed vitals as sent by clients. Blood pressure
// may be given as "120/80" under bloodPressure or as separate numbers.
func VitalsFromMap(m map[string]any) Vitals {
	v := Vitals{
		HeartRate:        number(m, "heartRate", "heart_rate", "hr"),
		BPSystolic:       number(m, "bpSystolic", "systolic"),
		BPDiastolic:      number(m, "bpDiastolic", "diastolic"),
		Temperature:      number(m, "temperature", "temp"),
		OxygenSaturation: number(m, "oxygenSaturation", "spo2", "o2Saturation"),
		RespiratoryRate:  number(m, "respiratoryRate", "respiratory_rate"),
	}
	if bp, ok := m["bloodPressure"].(string); ok && (v.BPSystolic == 0 || v.BPDiastolic == 0) {
		sys, dia, found := strings.Cut(bp, "/")
		if found {
			v.BPSystolic = parseFloat(sys)
			v.BPDiastolic = parseFloat(dia)
		}
	}
	return v
}

func number(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch val := m[k].(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case string:
			if f := parseFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, " %°CcFmHgbp")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func normalizeList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, t := range strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
			return r == ',' || r == ';'
		}) {
			trimmed := strings.TrimSpace(t)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func hasClassToken(tokens []string, class []string) bool {
	for _, t := range tokens {
		for _, drug := range class {
			if strings.Contains(t, drug) {
				return true
			}
		}
	}
	return false
}

func hasClassTokenByName(tokens []string, className string) bool {
	class, ok := drugClasses[className]
	if !ok {
		return false
	}
	return hasClassToken(tokens, class)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
