package service

import (
	"fmt"
	"strings"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

var moderateRiskCaveats = []string{
	"In patients with moderate fracture risk, it would be appropriate to consider a lateral x-ray of the thoracic and lumbar spine from T4-L4 to assess for possible compression fractures.",
	"The presence of a compression fracture of more than 25% would place the patient into the HIGH RISK category for future fractures and could change management strategies.",
}

const cannotCompareStatement = "Direct comparison to the prior examination cannot be performed as it was performed on a different machine and any comparison would not be statistically valid.\n\n" +
	"This examination can serve as a baseline for future follow-up examinations, however."

var followUpByTier = map[string]string{
	"Low":      "Follow-up suggested in 3 years.",
	"Moderate": "Follow-up suggested in 1-3 years, and bone active medication could be considered.",
	"High":     "Follow-up suggested in 1 year, and bone active medication could be considered.",
	"Within":   "Follow-up suggested in 3 years.",
	"Below":    "Follow-up suggested in 1 year.",
}

// summaryInput is everything the summary depends on.
type summaryInput struct {
	category    domain.DiagnosticCategory
	risk        domain.FractureRisk
	changes     []domain.ChangeResult
	history     domain.FragilityHistory
	suppressed  bool
	institution string
	tables      *ReferenceTables
}

// composeSummary returns the summary paragraphs in their fixed order.
func composeSummary(in summaryInput) []string {
	var out []string

	out = append(out, headline(in.category, in.risk))
	if in.risk == domain.ModerateRisk {
		out = append(out, moderateRiskCaveats...)
	}

	var change string
	if len(in.changes) > 0 && !in.suppressed {
		change = changeStatement(in.changes)
		out = append(out, change)
	}
	if modifier := modifierStatement(in.history); modifier != "" {
		out = append(out, modifier)
	}
	if in.suppressed {
		out = append(out, cannotCompareStatement)
	}
	if change != "" {
		if lsc, ok := in.tables.LSCDisclosure(in.institution); ok {
			out = append(out, lsc)
		}
	}

	if followUp := followUpStatement(in.category, in.risk); followUp != "" {
		out = append(out, followUp)
	}
	if in.risk == domain.RiskNotApplicable {
		out = append(out, string(domain.RiskNotApplicable))
	}
	return out
}

func headline(category domain.DiagnosticCategory, risk domain.FractureRisk) string {
	diagnostic := strings.ToUpper(string(category))
	if tier := risk.Tier(); tier != "" {
		return fmt.Sprintf("This patient has %s with %s FRACTURE RISK.", diagnostic, strings.ToUpper(tier))
	}
	return fmt.Sprintf("This patient has %s.", diagnostic)
}

// changeStatement renders one sentence per compared region followed by the
// management sentence.
func changeStatement(changes []domain.ChangeResult) string {
	sentences := make([]string, 0, len(changes)+1)
	decreased := false
	for _, c := range changes {
		if c.Significant() {
			sentences = append(sentences, fmt.Sprintf("There has been a statistically SIGNIFICANT %s in BMD in the %s.",
				strings.ToUpper(c.Direction()), c.Region))
			if c.Kind == domain.SignificantDecrease {
				decreased = true
			}
			continue
		}
		sentences = append(sentences, fmt.Sprintf("There has been NO statistically significant change in BMD in the %s from the prior examination.", c.Region))
	}

	if decreased {
		sentences = append(sentences, "Current management could be reassessed.")
	} else {
		sentences = append(sentences, "Current management remains appropriate.")
	}
	return strings.Join(sentences, " ")
}

func modifierStatement(h domain.FragilityHistory) string {
	switch {
	case h.FractureHistory && h.GlucocorticoidHistory:
		return "Fracture risk has been modified by the history of prior fragility fracture and glucocorticoid history."
	case h.FractureHistory:
		return "Fracture risk has been modified by the history of prior fragility fracture."
	case h.GlucocorticoidHistory:
		return "Fracture risk has been modified by glucocorticoid history."
	default:
		return ""
	}
}

// followUpStatement is keyed by the risk tier, or by the diagnostic tier for
// patients under 50.
func followUpStatement(category domain.DiagnosticCategory, risk domain.FractureRisk) string {
	if tier := risk.Tier(); tier != "" {
		return followUpByTier[tier]
	}
	if risk == domain.RiskNotApplicable {
		return followUpByTier[category.Tier()]
	}
	return ""
}
