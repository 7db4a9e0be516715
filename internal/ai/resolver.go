package ai

import (
	"fmt"
	"log"
	"strings"

	"Canvas-Auto-Quiz-Backend/internal/model"
)

const defaultPromptTemplate = `你需要完成以下在线测验的选择题。
仔细阅读每道题和所有选项，选出最合适的一项。
最终只回答一个JSON对象：键是题目ID，值是你所选选项的ID。
例如: {"1234": "5678", "1235": "5690"}
不要包含任何其他解释或文字。`

// Resolver 把题目模型交给外部AI服务并收回 AnswerMap。
type Resolver struct {
	provider       Provider
	promptTemplate string
}

func NewResolver(provider Provider) *Resolver {
	return &Resolver{provider: provider, promptTemplate: defaultPromptTemplate}
}

// Resolve 一次性解答整卷。返回的 AnswerMap 是整体生成的：调用方直接替换持有，
// 绝不跨调用做部分合并。提示词只引用已成功下载的媒体。
func (r *Resolver) Resolve(questions []*model.Question) (model.AnswerMap, error) {
	refs := collectFetchedMedia(questions)

	handles, err := r.provider.UploadMedia(refs)
	if err != nil {
		return nil, fmt.Errorf("上传媒体到AI提供商失败: %w", err)
	}
	markers := make(map[string]string, len(handles))
	for _, h := range handles {
		markers[h.Ref.SourceURL] = h.Marker
	}

	prompt := r.buildPrompt(questions, markers)
	fmt.Printf("正在将 %d 道题目提交给AI (%s)...\n", len(questions), r.provider.Name())

	raw, err := r.provider.Complete(prompt, handles)
	if err != nil {
		return nil, err
	}

	answers, err := ParseAnswerMap(raw)
	if err != nil {
		return nil, err
	}

	return filterValidAnswers(questions, answers), nil
}

func (r *Resolver) buildPrompt(questions []*model.Question, markers map[string]string) string {
	var sb strings.Builder
	sb.WriteString(r.promptTemplate)
	sb.WriteString("\n")

	for _, q := range questions {
		sb.WriteString(fmt.Sprintf("\n--- 题目 %s ---\n", q.ID))
		sb.WriteString(fmt.Sprintf("题干: %s\n", q.Text))
		writeMediaMarkers(&sb, "题干配图", q.Images, markers)
		sb.WriteString("选项:\n")
		for _, a := range q.Answers {
			sb.WriteString(fmt.Sprintf("  [%s] %s", a.ID, a.Text))
			if marker := firstMarker(a.Images, markers); marker != "" {
				sb.WriteString(fmt.Sprintf(" (配图: %s)", marker))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeMediaMarkers(sb *strings.Builder, label string, refs []*model.MediaRef, markers map[string]string) {
	for _, ref := range refs {
		if marker, ok := markers[ref.SourceURL]; ok {
			sb.WriteString(fmt.Sprintf("%s: %s\n", label, marker))
		}
	}
}

func firstMarker(refs []*model.MediaRef, markers map[string]string) string {
	for _, ref := range refs {
		if marker, ok := markers[ref.SourceURL]; ok {
			return marker
		}
	}
	return ""
}

// collectFetchedMedia 按文档顺序收集下载成功的媒体，URL去重后保序。
// 顺序即 OpenAI 兼容提供商的"图片N"序号，不能乱。
func collectFetchedMedia(questions []*model.Question) []*model.MediaRef {
	seen := make(map[string]bool)
	var refs []*model.MediaRef
	add := func(list []*model.MediaRef) {
		for _, ref := range list {
			if !ref.Fetched || seen[ref.SourceURL] {
				continue
			}
			seen[ref.SourceURL] = true
			refs = append(refs, ref)
		}
	}
	for _, q := range questions {
		add(q.Images)
		for _, a := range q.Answers {
			add(a.Images)
		}
	}
	return refs
}

// filterValidAnswers 引用完整性过滤：AI幻觉出的题目ID或选项ID逐条丢弃，
// 一条坏答案不应拖垮整卷其余正确的部分。
func filterValidAnswers(questions []*model.Question, answers model.AnswerMap) model.AnswerMap {
	valid := make(map[string]map[string]bool, len(questions))
	for _, q := range questions {
		options := make(map[string]bool, len(q.Answers))
		for _, a := range q.Answers {
			options[a.ID] = true
		}
		valid[q.ID] = options
	}

	result := make(model.AnswerMap, len(answers))
	for qid, aid := range answers {
		options, ok := valid[qid]
		if !ok {
			log.Printf("[AI] 警告: 丢弃未知题目ID '%s' 的答案。", qid)
			continue
		}
		if !options[aid] {
			log.Printf("[AI] 警告: 题目 '%s' 的答案 '%s' 不在选项列表中，按未作答处理。", qid, aid)
			continue
		}
		result[qid] = aid
	}
	return result
}
