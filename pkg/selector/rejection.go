package selector

// Rejection explains why an analyzed video was not recommended.
type Rejection struct {
	ContentID string   `json:"content_id"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Reasons   []string `json:"reasons"`
}

// lowVisualQuality is the visual quality score (0-10) below which a clip is
// reported as low quality.
const lowVisualQuality = 5.0

// InferRejectionReasons returns the reasons recorded by the analyzer, or
// derives them from its visual analysis flags when none were recorded. A
// missing safety flag counts as unsafe.
func InferRejectionReasons(recorded []string, visual map[string]any) []string {
	if len(recorded) > 0 {
		return recorded
	}

	reasons := []string{}
	if b, _ := visual["has_watermark"].(bool); b {
		reasons = append(reasons, "Has watermark")
	}
	if safe, _ := visual["is_safe_content"].(bool); !safe {
		reasons = append(reasons, "Content not safe for ads")
	}
	quality := 10.0
	if q, ok := visual["visual_quality_score"].(float64); ok {
		quality = q
	}
	if quality < lowVisualQuality {
		reasons = append(reasons, "Low visual quality")
	}
	return reasons
}
