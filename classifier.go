package industrymatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Classifier groups news items into per-language prompts, drives them
// through the rate limiter and the LLM provider, and maps the model's
// JSON reply back onto canonical industry labels.
type Classifier struct {
	provider Provider
	limiter  *Limiter
	taxonomy *Taxonomy
	meter    Meter
	logger   *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierMeter sets the event meter.
func WithClassifierMeter(m Meter) ClassifierOption {
	return func(c *Classifier) { c.meter = m }
}

// WithClassifierLogger sets the logger.
func WithClassifierLogger(lg *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = lg }
}

// NewClassifier creates a Classifier. The taxonomy is injected, never
// ambient: tests swap it freely.
func NewClassifier(provider Provider, limiter *Limiter, taxonomy *Taxonomy, opts ...ClassifierOption) (*Classifier, error) {
	if provider == nil {
		return nil, fmt.Errorf("industrymatch: provider is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("industrymatch: limiter is required")
	}
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	c := &Classifier{
		provider: provider,
		limiter:  limiter,
		taxonomy: taxonomy,
		meter:    noopMeter{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify assigns industries to a batch of items. With model == "" the
// best available model is selected; if every model is daily-exhausted
// the failure is logged and an empty (nil) result set is returned
// without error; callers must treat that as "nothing was classified".
//
// Items are partitioned by language and each non-empty group costs one
// LLM call. A group that cannot be admitted within the wait budget
// aborts the call with whatever was accumulated so far; a group whose
// response fails to parse contributes nothing but does not stop the
// other group. Usage is recorded for every call that got a response,
// parseable or not.
func (c *Classifier) Classify(ctx context.Context, items []NewsItem, model string) ([]Classification, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if model == "" {
		selected, err := c.limiter.SelectModel(ctx)
		if err != nil {
			if errors.Is(err, ErrNoModelAvailable) {
				c.logger.Error("no models available within daily limits")
				return nil, nil
			}
			return nil, err
		}
		model = selected
	}

	groups := partitionByLanguage(items)
	c.logger.Info("language distribution",
		"zh", len(groups[LangZH]), "en", len(groups[LangEN]))

	var results []Classification
	for _, lang := range []Language{LangZH, LangEN} {
		group := groups[lang]
		if len(group) == 0 {
			continue
		}

		prompt := buildPrompt(group, lang)
		estimated := EstimateTokens(prompt)

		if err := c.limiter.WaitForAdmission(ctx, model, estimated); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			c.logger.Error("cannot proceed due to rate limits",
				"model", model, "language", string(lang), "error", err)
			return results, nil
		}

		start := time.Now()
		resp, err := c.provider.GenerateContent(ctx, GenerateRequest{
			Model:             model,
			SystemInstruction: c.systemInstruction(lang),
			Prompt:            prompt,
		})
		if err != nil {
			c.meter.OnGroup(GroupEvent{
				Language: lang, Model: model, Items: len(group),
				Duration: time.Since(start), Err: err,
			})
			return results, err
		}

		// Actual usage is estimated over prompt + response. Recorded
		// before parsing: a garbled reply still consumed quota.
		actual := EstimateTokens(prompt + resp.Text)
		if err := c.limiter.Record(ctx, model, actual); err != nil {
			return results, err
		}

		parsed, err := parseClassifications(resp.Text)
		if err != nil {
			c.logger.Error("failed to parse classification response",
				"model", model, "language", string(lang), "error", err)
			c.meter.OnGroup(GroupEvent{
				Language: lang, Model: model, Items: len(group),
				Usage: resp.Usage, Duration: time.Since(start), Err: err,
			})
			continue
		}

		for _, p := range parsed {
			results = append(results, Classification{
				ID:         p.ID,
				Industries: c.normalize(p.Industries),
			})
		}
		c.meter.OnGroup(GroupEvent{
			Language: lang, Model: model, Items: len(group), Results: len(parsed),
			Usage: resp.Usage, Duration: time.Since(start),
		})
	}

	return results, nil
}

// ClassifyOne classifies a single item and returns its label list.
func (c *Classifier) ClassifyOne(ctx context.Context, item NewsItem) ([]string, error) {
	results, err := c.Classify(ctx, []NewsItem{item}, "")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Industries, nil
}

// normalize validates returned labels against the taxonomy, translating
// aliases and dropping anything unknown with a warning. At most three
// labels survive.
func (c *Classifier) normalize(labels []string) []string {
	valid := make([]string, 0, len(labels))
	for _, label := range labels {
		canonical, ok := c.taxonomy.Normalize(label)
		if !ok {
			c.logger.Warn("unknown industry label", "label", label)
			continue
		}
		valid = append(valid, canonical)
	}
	if len(valid) > 3 {
		valid = valid[:3]
	}
	return valid
}

// partitionByLanguage splits items by the language heuristic over the
// title plus the head of the content.
func partitionByLanguage(items []NewsItem) map[Language][]NewsItem {
	groups := make(map[Language][]NewsItem, 2)
	for _, item := range items {
		sample := item.Title + " " + head(item.Content, detectSampleLen)
		lang := DetectLanguage(sample)
		groups[lang] = append(groups[lang], item)
	}
	return groups
}

// head returns the first n runes of s.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// buildPrompt renders the batch as one enumerated prompt in the group's
// language.
func buildPrompt(items []NewsItem, lang Language) string {
	var b strings.Builder
	if lang == LangEN {
		b.WriteString("Classify the following news articles by industry:\n")
		for i, item := range items {
			fmt.Fprintf(&b, "\nNews %d:\nID: %s\nTitle: %s\nContent: %s\n",
				i+1, item.ID, item.Title, item.Content)
		}
		b.WriteString("\nReturn the classification results as JSON.")
		return b.String()
	}

	b.WriteString("请为以下新闻进行行业分类：\n")
	for i, item := range items {
		fmt.Fprintf(&b, "\n新闻%d:\nID: %s\n标题: %s\n内容: %s\n",
			i+1, item.ID, item.Title, item.Content)
	}
	b.WriteString("\n请返回JSON格式的分类结果。")
	return b.String()
}

// systemInstruction renders the classification rules and the full
// taxonomy list in the group's language.
func (c *Classifier) systemInstruction(lang Language) string {
	labels := c.taxonomy.Labels(lang)
	var b strings.Builder

	if lang == LangEN {
		b.WriteString("You are a professional news industry classification expert. Your task is to match the most relevant industry labels for news articles.\n\n")
		b.WriteString("Available industry labels:\n")
		for _, l := range labels {
			b.WriteString("- " + l + "\n")
		}
		b.WriteString(`
Classification rules:
1. Each news article can match 1-3 most relevant industries
2. Only use industry names from the above list, do not create new industries
3. Classify based on the main content of news title and content
4. If the news involves multiple industries, select the top 2-3 most relevant ones
5. If unable to determine the industry, return an empty array

Output format requirements:
- Must return standard JSON format
- Structure: {"classifications": [{"id": "news_id", "industries": ["Industry1", "Industry2"]}]}
- Ensure the JSON is valid and parses without modification`)
		return b.String()
	}

	b.WriteString("你是一个专业的新闻行业分类专家。你的任务是为新闻匹配最相关的行业标签。\n\n")
	b.WriteString("可选的行业标签：\n")
	for _, l := range labels {
		b.WriteString("- " + l + "\n")
	}
	b.WriteString(`
分类规则：
1. 每条新闻可以匹配1-3个最相关的行业
2. 只能使用上述列表中的行业名称，不能创造新的行业
3. 基于新闻标题和内容的主要内容进行分类
4. 如果新闻内容涉及多个行业，可以选择最主要的2-3个
5. 如果完全无法确定行业，返回空数组

输出格式要求：
- 必须返回标准JSON格式
- 结构：{"classifications": [{"id": "新闻ID", "industries": ["行业1", "行业2"]}]}
- 确保JSON格式正确，可以被直接解析`)
	return b.String()
}

// parseClassifications extracts the JSON object between the first '{'
// and the last '}' of raw and decodes it. Prose wrapped around the
// payload is tolerated; a missing or malformed object is not.
func parseClassifications(raw string) ([]Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, ErrNoJSON
	}

	var payload struct {
		Classifications []Classification `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("industrymatch: decode classification JSON: %w", err)
	}
	return payload.Classifications, nil
}
