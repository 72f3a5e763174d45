package highlight

import "regexp"

// Hook keyword categories (Indonesian + English). Category order is the
// tie-break order for title hints.
var keywordCategories = []struct {
	name     string
	weight   float64
	keywords []string
}{
	{
		name:   "importance",
		weight: 10,
		keywords: []string{
			"ini penting", "yang penting", "kuncinya", "serius", "harus tahu",
			"important", "must know", "critical", "essential", "crucial",
		},
	},
	{
		name:   "revelation",
		weight: 9,
		keywords: []string{
			"gila", "ternyata", "rahasia", "trik", "tips", "cara terbaik",
			"secret", "amazing", "incredible", "shocking", "revelation", "turns out",
		},
	},
	{
		name:   "summary",
		weight: 8,
		keywords: []string{
			"jadi intinya", "kesimpulannya", "yang paling", "pokoknya",
			"in conclusion", "to summarize", "the point is", "basically",
		},
	},
	{
		name:   "teaching",
		weight: 7,
		keywords: []string{
			"cara", "bagaimana", "tutorial", "langkah", "pro tip",
			"how to", "step by step", "game changer", "breakthrough",
		},
	},
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(apa|kenapa|mengapa|bagaimana|kapan|dimana|siapa)\b`),
	regexp.MustCompile(`\b(what|why|how|when|where|who)\b`),
	regexp.MustCompile(`\?`),
}

var wordPattern = regexp.MustCompile(`\w+`)

var categoryTitleHints = map[string]string{
	"importance": "(Important)",
	"revelation": "(Key Point)",
	"teaching":   "(Tutorial)",
}
