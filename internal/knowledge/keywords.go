package knowledge

import "strings"

// keywordMinScore is the floor for a keyword hit to count at all.
const keywordMinScore = 0.3

// synonymGroups maps a concept to the colloquial and catalog terms users
// mix freely. Built from the actual catalog vocabulary, so English course
// names (Zumba, TRX) sit next to their Chinese synonyms.
var synonymGroups = map[string][]string{
	"游泳":   {"游泳", "泳", "SG", "泳訓", "水中運動", "泳池", "自由式", "蛙式", "仰式", "蝶式", "銀髮族", "基礎班"},
	"瑜珈":   {"瑜珈", "瑜伽", "Yoga", "yoga", "正位", "修復", "陰瑜珈", "流瑜珈", "哈達", "瑜珈提斯", "核心瑜珈"},
	"有氧":   {"有氧", "燃脂", "減肥", "瘦身", "塑身", "雕塑", "身形", "體態", "產後", "恢復", "修復", "緊實", "線條", "活力", "爆汗"},
	"舞蹈":   {"舞蹈", "跳舞"},
	"韓流舞蹈": {"韓國", "韓流", "KPOP", "K-POP", "kpop", "流行舞", "韓國流行舞", "韓流舞", "女團"},
	"街舞":   {"街舞", "Street", "street", "Hip Hop", "hip hop"},
	"爵士舞":  {"爵士", "Jazz", "jazz", "Sexy", "sexy", "Free Jazz", "流行爵士", "艷舞"},
	"芭蕾":   {"芭蕾", "Ballet", "ballet", "空中芭蕾"},
	"拉丁舞":  {"拉丁", "倫巴", "恰恰", "森巴", "鬥牛", "牛仔"},
	"肚皮舞":  {"肚皮舞", "BELLYDANCE", "belly dance", "Belly Dance", "S曲線", "異域", "性感", "窈窕", "摩登瘦身肚皮舞", "基礎肚皮舞", "融合風"},
	"武術":   {"武術", "太極", "防身", "防身術", "自衛", "詠春", "抗暴", "武舞", "短兵", "技擊", "拳術", "武功", "八段錦", "氣功", "易筋經", "24式", "42式"},
	"拳擊":   {"拳擊", "拳", "拳擊有氧", "拳擊體能", "踢拳", "踢拳擊", "輕量拳擊", "boxing", "Boxing", "Thump Boxing", "拳擊間歇", "拳擊訓練", "核心拳擊"},
	"肌力":   {"肌力", "重訓", "訓練", "強化", "鍛鍊", "肌肉", "核心", "TRX", "壺鈴", "懸吊", "功能性", "徒手"},
	"飛輪":   {"飛輪", "騎行", "騎車", "單車", "瘋飛輪", "享瘦樂騎"},
	"空中瑜珈": {"空中瑜珈", "空瑜", "吊床", "低空", "空中芭蕾", "空中舞蹈"},
	"潛水":   {"潛水", "人魚", "救生", "自由潛水", "水肺潛水", "魚人共舞"},
	"Zumba": {"Zumba", "zumba", "尊巴", "Amazing Zumba", "Strong"},
	"皮拉提斯": {"皮拉提斯", "Pilates", "pilates", "精雕細琢"},
	"球類":   {"球類", "羽球", "桌球", "網球", "籃球", "壁球"},
	"兒童":   {"兒童", "小孩", "孩子", "Children", "children", "小一", "小二", "小三", "國一", "國二", "國三"},
	"幼兒":   {"幼兒", "小朋友", "寶寶", "3歲", "4歲", "5歲", "6歲"},
	"假日":   {"假日", "週末", "周末"},
	"年齡":   {"五歲", "5歲", "六歲", "6歲", "七歲", "7歲", "8歲", "9歲"},
	"養生":   {"養生", "保健", "調理", "太極", "氣功", "銀髮族"},
	"體能":   {"體能", "體力", "耐力", "健身", "運動", "活動", "循環"},
	"伸展":   {"伸展", "拉筋", "柔軟度", "靈活", "放鬆", "Stretch", "stretch", "修復"},
	"包班":   {"包班", "團體", "客製化", "公司", "企業"},
}

// categoryTerms are the words that signal a user is asking for a specific
// kind of course; used to decide whether vector results are on-topic.
var categoryTerms = []string{
	"游泳", "瑜珈", "有氧", "舞蹈", "韓流舞蹈", "街舞", "爵士舞", "芭蕾", "拉丁舞",
	"肚皮舞", "武術", "拳擊", "肌力", "飛輪", "空中瑜珈", "潛水", "Zumba", "皮拉提斯",
	"球類", "兒童", "幼兒", "減肥", "瘦身", "塑身", "雕塑", "身形", "體態", "產後",
	"燃脂", "訓練", "重訓", "健身", "運動", "TRX", "壺鈴", "太極", "氣功", "包班",
}

// ExpandKeywords returns the deduplicated synonym expansion for every
// concept the query touches. An empty result means the query has no known
// course vocabulary and keyword search would be noise.
func ExpandKeywords(query string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, synonyms := range synonymGroups {
		matched := false
		for _, syn := range synonyms {
			if strings.Contains(query, syn) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, syn := range synonyms {
			if _, ok := seen[syn]; !ok {
				seen[syn] = struct{}{}
				keywords = append(keywords, syn)
			}
		}
	}
	return keywords
}

// keywordMatchScore scores an entry against the expanded keywords:
// base ratio of matched keywords, +0.2 when a keyword lands in the
// category, +0.1 when two or more keywords match, capped at 1.0.
func keywordMatchScore(keywords []string, e Entry) float64 {
	if len(keywords) == 0 {
		return 0
	}

	haystack := e.Content + " " + e.Name + " " + e.Category
	matches := 0
	categoryMatch := false
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matches++
			if strings.Contains(e.Category, kw) {
				categoryMatch = true
			}
		}
	}

	score := float64(matches) / float64(len(keywords))
	if categoryMatch {
		score += 0.2
	}
	if matches >= 2 {
		score += 0.1
	}
	return min(score, 1.0)
}

// shouldUseKeywordFallback decides whether vector hits need supplementing:
// fewer than two hits always do; otherwise, when the query names a
// category and under half the hits mention it, the vector pass is judged
// off-topic.
func shouldUseKeywordFallback(query string, hits []Result) bool {
	if len(hits) < 2 {
		return true
	}

	var queryTerms []string
	for _, term := range categoryTerms {
		if strings.Contains(query, term) {
			queryTerms = append(queryTerms, term)
		}
	}
	if len(queryTerms) == 0 {
		return false
	}

	relevant := 0
	for _, hit := range hits {
		text := hit.Name + " " + hit.Category + " " + hit.Description
		for _, term := range queryTerms {
			if strings.Contains(text, term) {
				relevant++
				break
			}
		}
	}
	return float64(relevant)/float64(len(hits)) < 0.5
}
