// Package course loads and normalizes the sports-center course catalog.
// The source file is a JSON array exported from the center's registration
// system; field names are the original Traditional Chinese column headers.
package course

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one raw catalog entry as it appears in the export file.
// Numeric columns arrive as either JSON numbers or strings depending on
// which spreadsheet produced the export, so every field goes through
// flexString.
type Record struct {
	Serial      flexString `json:"項次"`
	Category    flexString `json:"大類"`
	Name        flexString `json:"課程名稱"`
	Description flexString `json:"課程介紹"`
	Room        flexString `json:"授課教室"`
	Code        flexString `json:"課程代碼"`
	Instructor  flexString `json:"授課教師"`
	AgeLimit    flexString `json:"年齡限制"`
	Weeks       flexString `json:"上課週次"`
	Schedule    flexString `json:"上課時間"`
	Price       flexString `json:"課程費用"`
	TrialPrice  flexString `json:"體驗費用"`
	MinSize     flexString `json:"開班人數"`
	MaxSize     flexString `json:"滿班人數"`
}

// Course is a cleaned catalog entry. Name and Description are always
// non-empty; everything else may be blank.
type Course struct {
	Serial      string `json:"serial"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Room        string `json:"room,omitempty"`
	Code        string `json:"code,omitempty"`
	Instructor  string `json:"instructor,omitempty"`
	AgeLimit    string `json:"age_limit,omitempty"`
	Weeks       string `json:"weeks,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
	Price       string `json:"price,omitempty"`
	TrialPrice  string `json:"trial_price,omitempty"`
	MinSize     string `json:"min_size,omitempty"`
	MaxSize     string `json:"max_size,omitempty"`
}

// Document is a course prepared for embedding and storage: Content is the
// searchable text handed to the embedder, Course keeps the full record for
// display.
type Document struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Course      Course `json:"course"`
}

// flexString accepts a JSON string, number, boolean or null and normalizes
// it to a trimmed string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	// Numbers and booleans keep their literal form.
	*f = flexString(strings.TrimSpace(string(data)))
	return nil
}

func (f flexString) String() string { return string(f) }

// clean converts a raw record to a Course. ok is false when the record
// lacks a name or description and should be dropped.
func (r Record) clean() (Course, bool) {
	c := Course{
		Serial:      r.Serial.String(),
		Category:    r.Category.String(),
		Name:        r.Name.String(),
		Description: r.Description.String(),
		Room:        r.Room.String(),
		Code:        r.Code.String(),
		Instructor:  r.Instructor.String(),
		AgeLimit:    r.AgeLimit.String(),
		Weeks:       r.Weeks.String(),
		Schedule:    r.Schedule.String(),
		Price:       r.Price.String(),
		TrialPrice:  r.TrialPrice.String(),
		MinSize:     r.MinSize.String(),
		MaxSize:     r.MaxSize.String(),
	}
	if c.Name == "" || c.Description == "" {
		return Course{}, false
	}
	return c, true
}

// SearchableText builds the text that gets embedded for a course. Beyond
// the literal fields it injects category keyword expansions so that
// colloquial queries ("我想減肥") land near the right categories in
// vector space.
func SearchableText(c Course) string {
	var parts []string

	if c.Name != "" {
		parts = append(parts, "課程名稱: "+c.Name)
	}
	if c.Category != "" {
		parts = append(parts, "類別: "+c.Category)
		if kw := categoryKeywords(c.Category); kw != "" {
			parts = append(parts, "相關關鍵詞: "+kw)
		}
	}
	if c.Description != "" {
		parts = append(parts, "介紹: "+c.Description)
	}

	var details []string
	for _, kv := range []struct{ label, value string }{
		{"授課教師", c.Instructor},
		{"年齡限制", c.AgeLimit},
		{"上課時間", c.Schedule},
		{"課程費用", c.Price},
		{"體驗費用", c.TrialPrice},
	} {
		if kv.value != "" {
			details = append(details, kv.label+": "+kv.value)
		}
	}
	if len(details) > 0 {
		parts = append(parts, "詳細資訊: "+strings.Join(details, ", "))
	}

	return strings.Join(parts, "\n")
}

// categoryKeywords maps a catalog category to colloquial search terms.
// The keys are the exact category strings from the export file (they
// contain a full-width space between the code and the label).
func categoryKeywords(category string) string {
	keywords := map[string]string{
		"SG　泳訓團體":   "游泳 泳訓 游泳課程 泳池 水中運動 游泳教學 泳技 水性 戲水",
		"A　有氧系列":    "有氧運動 燃脂 減肥 心肺 塑身 雕塑 體適能",
		"B　舞蹈系列":    "舞蹈 跳舞 律動 舞步 音樂 節奏",
		"C　瑜珈系列":    "瑜珈 瑜伽 伸展 放鬆 冥想 體位法 柔軟度",
		"D　飛輪系列":    "飛輪 單車 腳踏車 心肺訓練 燃脂",
		"E　武術系列":    "武術 太極 氣功 功夫 武功 防身術",
		"F　專業運動":    "專業運動 體適能 肌力 訓練 健身",
		"G　幼兒/兒童系列": "幼兒 兒童 小孩 孩子 親子 兒童課程 幼兒課程",
		"H　空中瑜珈":    "空中瑜珈 空中 懸吊 反重力",
		"J　肌力系列":    "肌力 重訓 肌肉 力量 訓練",
		"K　水中運動":    "水中運動 水中 水療 水中健身",
		"O　球類團體":    "球類 團體運動 球類運動 羽球 桌球 網球",
		"DV　潛水系列":   "潛水 深潛 水肺潛水 自由潛水",
	}
	return keywords[category]
}

// courseID returns a stable identifier for a course: the serial number
// from the export when present, otherwise the positional index.
func courseID(c Course, index int) string {
	if c.Serial != "" {
		return c.Serial
	}
	return strconv.Itoa(index)
}
