package rag

import (
	"fmt"
	"strings"

	"github.com/coursemate/coursemate/internal/knowledge"
)

// systemPrompt pins the assistant to the retrieved catalog. The
// no-fabrication rule is the load-bearing part: the model must never
// invent courses that are not in the context.
const systemPrompt = `你是一個專業的課程推薦助手。基於提供的課程資訊，為用戶推薦最適合的課程。

重要原則：
1. 只推薦提供的課程資訊中存在的課程，絕對不能虛構或推薦不存在的課程
2. 根據用戶需求和課程匹配度進行排序推薦
3. 提供具體且實用的推薦理由
4. 用繁體中文回答
5. 格式要清晰，包含課程名稱、類別、介紹和推薦理由

如果沒有找到完全匹配的課程，要誠實說明，並推薦最相近的替代選項。`

// buildUserPrompt renders the query and retrieved courses into the
// context block the model answers from.
func buildUserPrompt(query string, results []knowledge.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用戶查詢: %s\n\n相關課程資訊:", query)

	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. 課程名稱: %s", i+1, r.Name)
		fmt.Fprintf(&b, "\n   類別: %s", r.Category)
		fmt.Fprintf(&b, "\n   介紹: %s", r.Description)
		fmt.Fprintf(&b, "\n   相似度: %.3f", r.Score)

		var details []string
		for _, kv := range []struct{ label, value string }{
			{"授課教師", r.Instructor},
			{"上課時間", r.Schedule},
			{"授課教室", r.Location},
			{"課程費用", r.Price},
		} {
			if kv.value != "" {
				details = append(details, kv.label+": "+kv.value)
			}
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, "\n   詳細資訊: %s", strings.Join(details, ", "))
		}
	}

	b.WriteString("\n\n請根據以上課程資訊，為用戶提供最適合的課程推薦：")
	return b.String()
}
