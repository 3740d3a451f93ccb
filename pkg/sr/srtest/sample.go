package srtest

// TrendPoint is one dated row of a trend table.
type TrendPoint struct {
	Date string
	Age  float64
	BMD  float64
}

// Trend returns a trend container ("Trend <region>") with one container per date.
func Trend(region string, points ...TrendPoint) Item {
	dates := make([]Item, 0, len(points))
	for _, p := range points {
		dates = append(dates, Container(p.Date,
			Num("AGE", p.Age, "y"),
			Num("BMD", p.BMD, "g/cm2"),
		))
	}
	return Container("Trend "+region, dates...)
}

// Region returns a point region container with BMD and optional T- and Z-scores.
func Region(name string, bmd float64, scores ...float64) Item {
	children := []Item{Num("BMD", bmd, "g/cm2")}
	if len(scores) > 0 {
		children = append(children, Num("BMD_TSCORE", scores[0], ""))
	}
	if len(scores) > 1 {
		children = append(children, Num("BMD_ZSCORE", scores[1], ""))
	}
	return Container(name, children...)
}

// SampleContent returns the content tree of the sample report. Scanned on
// 2024-03-15 with priors on 2020-03-05 and 2022-03-10: L4 is an outlier,
// the lumbar L1-L3 BMD fell by 0.047 g/cm2 and the left total femur by 0.005 g/cm2.
func SampleContent() Item {
	return Container("DXA Report",
		Container("AP Spine",
			Region("L1", 1.050, -0.9, 0.2),
			Region("L2", 1.020, -1.3, -0.1),
			Region("L3", 1.000, -1.5, -0.3),
			Region("L4", 0.890, -2.7, -1.4),
			Region("L1-L4", 0.985, -1.6, -0.4),
			Region("L1-L3", 1.023, -1.2, -0.1),
			Region("L2-L4", 0.970, -1.8, -0.6),
			Trend("L1-L3",
				TrendPoint{"20200305", 61, 1.080},
				TrendPoint{"20220310", 63, 1.070},
				TrendPoint{"20240315", 65, 1.023},
			),
			Trend("L1-L4",
				TrendPoint{"20200305", 61, 1.040},
				TrendPoint{"20220310", 63, 1.030},
				TrendPoint{"20240315", 65, 0.985},
			),
		),
		Container("Left Femur",
			Region("Neck", 0.700, -2.0, -0.8),
			Region("Total", 0.820, -1.3, -0.2),
			Trend("Neck",
				TrendPoint{"20200305", 61, 0.720},
				TrendPoint{"20220310", 63, 0.710},
				TrendPoint{"20240315", 65, 0.700},
			),
			Trend("Total",
				TrendPoint{"20200305", 61, 0.830},
				TrendPoint{"20220310", 63, 0.825},
				TrendPoint{"20240315", 65, 0.820},
			),
		),
		Text("Comment", "Patient positioned correctly."),
	)
}

// SampleReport returns the sample report with the default header.
func SampleReport() Item {
	return Report(DefaultHeader(), SampleContent())
}
