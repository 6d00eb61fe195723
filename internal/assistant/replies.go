package assistant

import "strings"

const (
	replyLisinopril = "Lisinopril (10mg daily) is effectively managing your blood pressure. Current readings of 120/80 mmHg are within optimal range. Continue monitoring for any side effects."
	replyAspirin    = "Low-dose Aspirin (81mg daily) is appropriate for cardiovascular prevention given your family history. Regular use shows no concerning interactions with your other medications."
	replyMedication = "Your current medication regimen appears well-tolerated with no significant interactions. Regular monitoring is in place."

	replyVitalsNormal = "Your vital signs are within normal ranges:\n" +
		"- Heart rate: 72 bpm (normal: 60-100)\n" +
		"- Blood pressure: 120/80 mmHg (optimal)\n" +
		"- Temperature: 36.6°C (normal)\n" +
		"- O₂ Saturation: 98% (excellent)"
	replyVitalsConcerns = "While your vitals are generally stable, we should monitor your blood pressure closely given your family history."

	replyExercise = "Given your controlled blood pressure, moderate exercise is beneficial. Aim for:\n" +
		"- 30 minutes of aerobic activity 5 days/week\n" +
		"- Start with walking or swimming\n" +
		"- Monitor heart rate during exercise\n" +
		"- Stay well-hydrated"
	replyDiet = "Your current health profile suggests focusing on:\n" +
		"- Low sodium diet (<2,300mg/day)\n" +
		"- Rich in fruits and vegetables\n" +
		"- Whole grains\n" +
		"- Lean proteins\n" +
		"- Limited processed foods"

	replyDefault = "Based on your current health profile:\n\n" +
		"- Your blood pressure is well-controlled with Lisinopril\n" +
		"- Cardiovascular risk is being managed with preventive measures\n" +
		"- Regular monitoring and lifestyle modifications are key\n\n" +
		"Please be more specific with your question for detailed recommendations."
)

// FallbackReply picks a canned answer by keyword. Medication questions win
// over vitals, vitals over exercise, exercise over diet.
func FallbackReply(message string) string {
	q := strings.ToLower(message)

	switch {
	case containsAny(q, "medication", "lisinopril", "aspirin"):
		if strings.Contains(q, "lisinopril") {
			return replyLisinopril
		}
		if strings.Contains(q, "aspirin") {
			return replyAspirin
		}
		return replyMedication
	case containsAny(q, "vital", "heart rate", "blood pressure"):
		return replyVitalsNormal + "\n\n" + replyVitalsConcerns
	case containsAny(q, "exercise", "physical activity"):
		return replyExercise
	case containsAny(q, "diet", "food", "eat"):
		return replyDiet
	}
	return replyDefault
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
