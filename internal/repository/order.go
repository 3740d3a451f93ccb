package repository

import (
	"sort"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func bodyPartRank(b domain.BodyPart) int {
	for i, known := range domain.KnownBodyParts {
		if known == b {
			return i
		}
	}
	return len(domain.KnownBodyParts)
}

// sortPoints orders rows the way the extractor emits them.
func sortPoints(rows []domain.PointMeasurement) {
	sort.Slice(rows, func(i, j int) bool {
		if ri, rj := bodyPartRank(rows[i].BodyPart), bodyPartRank(rows[j].BodyPart); ri != rj {
			return ri < rj
		}
		return rows[i].Region < rows[j].Region
	})
}

// sortTrendRows orders rows by date, then body part and region.
func sortTrendRows(rows []domain.TrendMeasurement) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if ra, rb := bodyPartRank(a.BodyPart), bodyPartRank(b.BodyPart); ra != rb {
			return ra < rb
		}
		return a.Region < b.Region
	})
}
