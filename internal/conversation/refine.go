package conversation

import "strings"

// applyReasons flips preference flags based on the vocabulary of feedback
// reasons. Matching is substring-based since reasons arrive as free text.
func applyReasons(prefs Preferences, reasons []string) Preferences {
	for _, reason := range reasons {
		switch {
		case strings.Contains(reason, "時間"):
			prefs.TimeSensitive = true
		case strings.Contains(reason, "費用"), strings.Contains(reason, "價格"):
			prefs.PriceSensitive = true
		case strings.Contains(reason, "難度"), strings.Contains(reason, "程度"):
			prefs.DifficultySensitive = true
		case strings.Contains(reason, "地點"), strings.Contains(reason, "位置"):
			prefs.LocationSensitive = true
		case strings.Contains(reason, "教師"), strings.Contains(reason, "老師"):
			prefs.InstructorSensitive = true
		}
	}
	return prefs
}

// maxFollowupQuestions caps how many clarifying questions one feedback
// round produces.
const maxFollowupQuestions = 3

// FollowupQuestions builds clarifying questions from free-text feedback.
// Specific complaints get targeted questions; anything else gets the
// generic set. At most three questions are returned.
func FollowupQuestions(feedback string) []string {
	var questions []string

	if strings.Contains(feedback, "不適合") || strings.Contains(feedback, "不符合") {
		questions = append(questions,
			"能告訴我具體哪方面不符合您的需求嗎？",
			"是時間安排、費用、難度程度，還是其他方面的問題？")
	}
	if strings.Contains(feedback, "時間") {
		questions = append(questions,
			"您比較偏好什麼時段的課程？",
			"是希望平日還是假日的課程？")
	}
	if strings.Contains(feedback, "費用") || strings.Contains(feedback, "貴") {
		questions = append(questions,
			"您希望的課程費用大概在什麼範圍內？",
			"您是否考慮體驗課程或優惠方案？")
	}
	if strings.Contains(feedback, "難度") {
		questions = append(questions,
			"您希望的課程難度如何？初學者、進階還是專業級？",
			"您之前有相關經驗嗎？")
	}

	if len(questions) == 0 {
		questions = []string{
			"能更詳細地描述您理想中的課程嗎？",
			"除了剛才推薦的課程，您還有其他特殊需求嗎？",
			"您最看重課程的哪個方面？例如教學品質、價格、時間彈性等？",
		}
	}

	if len(questions) > maxFollowupQuestions {
		questions = questions[:maxFollowupQuestions]
	}
	return questions
}

// RefineQuery augments a query with the session's accumulated preference
// signals so retrieval leans toward what earlier feedback asked for.
func RefineQuery(query string, sctx Context) string {
	var b strings.Builder
	b.WriteString(query)

	if sctx.Preferences.TimeSensitive {
		b.WriteString(" 時間彈性")
	}
	if sctx.Preferences.PriceSensitive {
		b.WriteString(" 經濟實惠")
	}
	if sctx.Preferences.DifficultySensitive {
		b.WriteString(" 適合程度")
	}
	if len(sctx.RejectedCourses) > 0 {
		b.WriteString(" 但不要包含已拒絕的課程類型")
	}

	return b.String()
}
