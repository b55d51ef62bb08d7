package industrymatch

import (
	"sort"
	"strings"
)

// Taxonomy is a fixed bidirectional mapping between canonical industry
// labels and their English display aliases. Canonical labels are what
// gets persisted; aliases are what an English-language prompt shows the
// model and what the model may echo back.
type Taxonomy struct {
	canonical map[string]struct{}
	aliases   map[string]string // alias -> canonical
	lower     map[string]string // lowercased alias -> canonical

	canonicalList []string
	aliasList     []string
}

// NewTaxonomy builds a taxonomy from an alias -> canonical mapping.
// Label lists are sorted for deterministic prompt rendering.
func NewTaxonomy(aliases map[string]string) *Taxonomy {
	t := &Taxonomy{
		canonical: make(map[string]struct{}, len(aliases)),
		aliases:   make(map[string]string, len(aliases)),
		lower:     make(map[string]string, len(aliases)),
	}
	for alias, canonical := range aliases {
		t.aliases[alias] = canonical
		t.lower[strings.ToLower(alias)] = canonical
		if _, seen := t.canonical[canonical]; !seen {
			t.canonical[canonical] = struct{}{}
			t.canonicalList = append(t.canonicalList, canonical)
		}
		t.aliasList = append(t.aliasList, alias)
	}
	sort.Strings(t.canonicalList)
	sort.Strings(t.aliasList)
	return t
}

// Labels returns the taxonomy rendered in the given language: canonical
// labels for Chinese, aliases for English.
func (t *Taxonomy) Labels(lang Language) []string {
	if lang == LangEN {
		return t.aliasList
	}
	return t.canonicalList
}

// Normalize maps a model-returned label onto a canonical label. Exact
// canonical match wins, then exact alias, then case-insensitive alias.
// Anything else is rejected.
func (t *Taxonomy) Normalize(label string) (string, bool) {
	if _, ok := t.canonical[label]; ok {
		return label, true
	}
	if c, ok := t.aliases[label]; ok {
		return c, true
	}
	if c, ok := t.lower[strings.ToLower(label)]; ok {
		return c, true
	}
	return "", false
}

// DefaultTaxonomy returns the built-in industry taxonomy: 39 industries
// with Chinese canonical labels and English aliases.
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(map[string]string{
		"5G Communication":        "5G通信",
		"Agricultural Technology": "农业科技",
		"Artificial Intelligence": "人工智能",
		"AI Generated Content":    "AIGC",
		"Automotive Manufacturing": "汽车制造",
		"Autonomous Driving":      "智能驾驶",
		"Biotechnology":           "生物医药",
		"Cloud Computing":         "云计算",
		"Commercial Space":        "商业航天",
		"Construction Engineering": "建筑工程",
		"Content Creation":        "内容创作",
		"Cross-border E-commerce": "跨境电商",
		"Cultural Creative":       "文化创意",
		"Cybersecurity":           "网络安全",
		"E-commerce":              "电子商务",
		"Enterprise Services":     "企业服务",
		"Fintech":                 "金融科技",
		"Gaming":                  "游戏",
		"Healthcare":              "大健康",
		"Data Center":             "IDC数据中心",
		"Internet of Things":      "物联网",
		"Local Services":          "本地生活服务",
		"Logistics":               "物流快递",
		"Medical Devices":         "医疗器械",
		"Electric Vehicles":       "新能源汽车",
		"New Materials":           "新材料",
		"Online Education":        "在线教育",
		"Petrochemicals":          "石油化工",
		"Real Estate":             "房地产",
		"Renewable Energy":        "新能源",
		"Retail":                  "零售消费",
		"Robotics":                "机器人",
		"SaaS":                    "SaaS",
		"Semiconductor":           "半导体",
		"Live Streaming":          "短视频直播",
		"Smart Manufacturing":     "智能制造",
		"Steel":                   "钢铁冶金",
		"Textile":                 "纺织服装",
		"Tourism":                 "旅游酒店",
	})
}
