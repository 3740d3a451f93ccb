package service

import (
	"fmt"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

const deviceReplacedNotice = "\n\nThe BMD machine has been replaced at this hospital site since the prior examination and therefore direct statistical comparison is not possible.\n\nThis current study will serve as a baseline for future examinations, however."

// reportTemplate is the fixed layout of the generated report. Trailing spaces are part of it.
const reportTemplate = "\nEXAM: \n[<Examination Description>] \n\n" +
	"CLINICAL INDICATION: \n[<Reason For Exam>] \n\n" +
	"REFERENCE EXAMINATIONS: \n%s\n\n" +
	"TECHNIQUE: \n%s\n\n" +
	"FINDINGS:\n%s \n\n" +
	"SUMMARY: \n%s\n\n" +
	"CAROC recommendations (2010) age 50 years and older: \n" +
	"T-score between -1 and -2.5 = low bone mass \n" +
	"T-score -2.5 or less = osteoporosis \n\n" +
	"Fragility fractures of spine or hip or 2 fragility fractures elsewhere = osteoporosis and high fracture risk regardless of T-score \n\n" +
	"Bisphosphonate therapy may lower fracture risk. \n"

// ReportText holds the variable sections of the generated report.
type ReportText struct {
	ReferenceExaminations string
	Technique             string
	Findings              string
	Summary               string
}

// RenderReport fills the report template.
func RenderReport(t ReportText) string {
	return fmt.Sprintf(reportTemplate, t.ReferenceExaminations, t.Technique, t.Findings, t.Summary)
}

// ReferenceExaminations describes the earlier exams of a study.
func ReferenceExaminations(dates ExamDates, suppressed bool) string {
	var text string
	switch n := dates.PreviousCount(); {
	case n > 2:
		text = fmt.Sprintf("Multiple previous examinations, including a baseline on %s and the most recent on %s.",
			baselineYear(dates), priorDay(dates))
	case n == 2:
		text = fmt.Sprintf("Baseline on %s and the previous on %s.", baselineYear(dates), priorDay(dates))
	case n == 1:
		text = fmt.Sprintf("Previous examination on %s.", priorDay(dates))
	default:
		text = "None."
	}

	if suppressed {
		text += deviceReplacedNotice
	}
	return text
}

// baselineYear falls back to the earliest earlier exam when no date covers every body part.
func baselineYear(dates ExamDates) string {
	if dates.Baseline != nil {
		return dates.Baseline.Format("2006")
	}
	return dates.Previous[0].Format("2006")
}

func priorDay(dates ExamDates) string {
	return dates.Prior.Format("January 02, 2006")
}

// Technique describes the exam as a baseline or a repeat study.
func Technique(age int, sex domain.Sex, previousCount int) string {
	kind := "baseline"
	if previousCount > 0 {
		kind = "repeat"
	}
	return fmt.Sprintf("A %s bone density study was obtained on this %d year old %s", kind, age, sex)
}
