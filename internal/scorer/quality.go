package scorer

// QualityLabel buckets a final score for reporting.
type QualityLabel string

const (
	QualityExcellent QualityLabel = "excellent"
	QualityVeryGood  QualityLabel = "very_good"
	QualityGood      QualityLabel = "good"
	QualityFair      QualityLabel = "fair"
	QualityLow       QualityLabel = "low"
)

// LabelFor maps a final score to its reporting bucket.
func LabelFor(score float64) QualityLabel {
	switch {
	case score >= 0.93:
		return QualityExcellent
	case score >= 0.88:
		return QualityVeryGood
	case score >= 0.82:
		return QualityGood
	case score >= 0.78:
		return QualityFair
	default:
		return QualityLow
	}
}
