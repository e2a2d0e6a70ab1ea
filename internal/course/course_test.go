package course

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	return NewProcessor(filepath.Join("testdata", "courses.json"), nil)
}

func TestProcessor_Courses(t *testing.T) {
	p := testProcessor(t)

	courses, err := p.Courses()
	if err != nil {
		t.Fatalf("Courses() error = %v", err)
	}

	// Two of the five records lack a name or description.
	if got, want := len(courses), 3; got != want {
		t.Fatalf("len(courses) = %d, want %d", got, want)
	}

	first := courses[0]
	if first.Name != "哈達瑜珈" {
		t.Errorf("Name = %q, want 哈達瑜珈", first.Name)
	}
	if first.Serial != "1" {
		t.Errorf("Serial = %q, want \"1\" (numeric JSON normalized to string)", first.Serial)
	}
	if first.Price != "2400" {
		t.Errorf("Price = %q, want \"2400\"", first.Price)
	}
	if first.TrialPrice != "200" {
		t.Errorf("TrialPrice = %q, want \"200\"", first.TrialPrice)
	}
}

func TestProcessor_Categories(t *testing.T) {
	p := testProcessor(t)

	categories, err := p.Categories()
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}

	want := []string{"A　有氧系列", "C　瑜珈系列"}
	if len(categories) != len(want) {
		t.Fatalf("categories = %v, want %v", categories, want)
	}
	for i := range want {
		if categories[i] != want[i] {
			t.Errorf("categories[%d] = %q, want %q", i, categories[i], want[i])
		}
	}
}

func TestProcessor_ByCategory(t *testing.T) {
	p := testProcessor(t)

	courses, err := p.ByCategory("A　有氧系列")
	if err != nil {
		t.Fatalf("ByCategory() error = %v", err)
	}
	if got, want := len(courses), 2; got != want {
		t.Fatalf("len(courses) = %d, want %d", got, want)
	}
	for _, c := range courses {
		if c.Category != "A　有氧系列" {
			t.Errorf("Category = %q, want A　有氧系列", c.Category)
		}
	}
}

func TestProcessor_Documents(t *testing.T) {
	p := testProcessor(t)

	docs, err := p.Documents()
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if got, want := len(docs), 3; got != want {
		t.Fatalf("len(docs) = %d, want %d", got, want)
	}

	doc := docs[0]
	if doc.ID != "0" {
		t.Errorf("ID = %q, want \"0\"", doc.ID)
	}
	if doc.CourseID != "1" {
		t.Errorf("CourseID = %q, want \"1\"", doc.CourseID)
	}
	if doc.Title != "哈達瑜珈" {
		t.Errorf("Title = %q, want 哈達瑜珈", doc.Title)
	}
	if doc.Content == "" {
		t.Error("Content is empty")
	}
}

func TestProcessor_MissingFile(t *testing.T) {
	p := NewProcessor(filepath.Join("testdata", "does-not-exist.json"), nil)
	if _, err := p.Courses(); err == nil {
		t.Fatal("Courses() error = nil, want error for missing file")
	}
}

func TestSearchableText(t *testing.T) {
	c := Course{
		Name:        "哈達瑜珈",
		Category:    "C　瑜珈系列",
		Description: "放鬆伸展。",
		Instructor:  "王老師",
		Schedule:    "週一 19:00-20:00",
		Price:       "2400",
	}

	text := SearchableText(c)

	for _, want := range []string{
		"課程名稱: 哈達瑜珈",
		"類別: C　瑜珈系列",
		"相關關鍵詞:",
		"瑜伽", // keyword expansion for the yoga category
		"介紹: 放鬆伸展。",
		"授課教師: 王老師",
		"課程費用: 2400",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("SearchableText missing %q in:\n%s", want, text)
		}
	}
}

func TestSearchableText_UnknownCategory(t *testing.T) {
	c := Course{Name: "測試", Category: "Z　不存在", Description: "x"}
	if text := SearchableText(c); strings.Contains(text, "相關關鍵詞") {
		t.Errorf("unexpected keyword section for unknown category:\n%s", text)
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"hello"`, "hello"},
		{"string with spaces", `"  hi  "`, "hi"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"null", `null`, ""},
		{"bool", `true`, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexString
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if f.String() != tt.want {
				t.Errorf("flexString = %q, want %q", f.String(), tt.want)
			}
		})
	}
}
