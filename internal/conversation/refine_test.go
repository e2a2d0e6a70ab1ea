package conversation

import (
	"strings"
	"testing"
)

func TestApplyReasons(t *testing.T) {
	tests := []struct {
		name    string
		reasons []string
		want    Preferences
	}{
		{
			name:    "time reason",
			reasons: []string{"上課時間太晚"},
			want:    Preferences{TimeSensitive: true},
		},
		{
			name:    "price via either word",
			reasons: []string{"費用太高"},
			want:    Preferences{PriceSensitive: true},
		},
		{
			name:    "difficulty via level word",
			reasons: []string{"程度不符"},
			want:    Preferences{DifficultySensitive: true},
		},
		{
			name:    "instructor",
			reasons: []string{"想換老師"},
			want:    Preferences{InstructorSensitive: true},
		},
		{
			name:    "multiple reasons accumulate",
			reasons: []string{"時間不方便", "價格太貴", "地點太遠"},
			want:    Preferences{TimeSensitive: true, PriceSensitive: true, LocationSensitive: true},
		},
		{
			name:    "unrelated reason changes nothing",
			reasons: []string{"顏色不好看"},
			want:    Preferences{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyReasons(Preferences{}, tt.reasons); got != tt.want {
				t.Errorf("applyReasons(%v) = %+v, want %+v", tt.reasons, got, tt.want)
			}
		})
	}
}

func TestApplyReasons_PreservesExistingFlags(t *testing.T) {
	prefs := Preferences{TimeSensitive: true}
	got := applyReasons(prefs, []string{"價格太貴"})
	if !got.TimeSensitive || !got.PriceSensitive {
		t.Errorf("applyReasons() = %+v, want both time and price set", got)
	}
}

func TestFollowupQuestions(t *testing.T) {
	tests := []struct {
		name     string
		feedback string
		wantHint string
	}{
		{"mismatch complaint", "這些課程不適合我", "哪方面不符合"},
		{"time complaint", "時間都對不上", "什麼時段"},
		{"price complaint", "太貴了", "費用大概在什麼範圍"},
		{"difficulty complaint", "難度太高", "課程難度如何"},
		{"vague feedback gets generic questions", "嗯嗯", "理想中的課程"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			questions := FollowupQuestions(tt.feedback)
			if len(questions) == 0 || len(questions) > maxFollowupQuestions {
				t.Fatalf("FollowupQuestions(%q) returned %d questions, want 1..%d",
					tt.feedback, len(questions), maxFollowupQuestions)
			}
			found := false
			for _, q := range questions {
				if strings.Contains(q, tt.wantHint) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("FollowupQuestions(%q) = %v, want a question containing %q",
					tt.feedback, questions, tt.wantHint)
			}
		})
	}
}

func TestFollowupQuestions_CapsAtThree(t *testing.T) {
	// Touches several complaint groups at once.
	questions := FollowupQuestions("課程不適合我，時間不對，又太貴，難度也不行")
	if len(questions) != maxFollowupQuestions {
		t.Errorf("len(questions) = %d, want %d", len(questions), maxFollowupQuestions)
	}
}

func TestRefineQuery(t *testing.T) {
	tests := []struct {
		name string
		sctx Context
		want string
	}{
		{
			name: "no signals leaves query unchanged",
			sctx: Context{},
			want: "瑜珈課",
		},
		{
			name: "time preference",
			sctx: Context{Preferences: Preferences{TimeSensitive: true}},
			want: "瑜珈課 時間彈性",
		},
		{
			name: "all retrieval-relevant preferences",
			sctx: Context{Preferences: Preferences{
				TimeSensitive: true, PriceSensitive: true, DifficultySensitive: true,
			}},
			want: "瑜珈課 時間彈性 經濟實惠 適合程度",
		},
		{
			name: "rejected courses add exclusion hint",
			sctx: Context{RejectedCourses: []string{"17"}},
			want: "瑜珈課 但不要包含已拒絕的課程類型",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefineQuery("瑜珈課", tt.sctx); got != tt.want {
				t.Errorf("RefineQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidFeedbackKind(t *testing.T) {
	for _, kind := range []string{FeedbackDissatisfied, FeedbackPartiallySatisfied, FeedbackSatisfied} {
		if !validFeedbackKind(kind) {
			t.Errorf("validFeedbackKind(%q) = false, want true", kind)
		}
	}
	if validFeedbackKind("angry") {
		t.Error("validFeedbackKind(\"angry\") = true, want false")
	}
}
