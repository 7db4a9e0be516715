package service

import "Canvas-Auto-Quiz-Backend/internal/model"

// ConfirmationLevel 提交前需要的人工确认强度。
type ConfirmationLevel int

const (
	// ConfirmNone 跳过确认（skip_confirm 或非交互调用方）。
	ConfirmNone ConfirmationLevel = iota
	// ConfirmLightweight 答案完整，轻量确认即可。
	ConfirmLightweight
	// ConfirmStrong 存在未作答题目，必须输入完整的确认短语。
	ConfirmStrong
)

// StrongConfirmPhrase 提交不完整试卷时必须逐字输入的短语。
// 故意与轻量确认词完全不同，让提交残卷的代价显而易见。
const StrongConfirmPhrase = "确认提交未完成的试卷"

var lightweightWords = map[string]bool{
	"y":   true,
	"yes": true,
	"是":   true,
	"确认":  true,
}

// Unanswered 计算未作答的题目ID，保持文档顺序。
func Unanswered(questions []*model.Question, answers model.AnswerMap) []string {
	var missing []string
	for _, q := range questions {
		if _, ok := answers[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// RequiresConfirmation 纯决策函数，不做任何IO；交互与否由调用方决定。
func RequiresConfirmation(unanswered []string, skipConfirm bool) ConfirmationLevel {
	if skipConfirm {
		return ConfirmNone
	}
	if len(unanswered) > 0 {
		return ConfirmStrong
	}
	return ConfirmLightweight
}

// AcceptsConfirmation 判断用户输入是否满足对应强度的确认。
func AcceptsConfirmation(level ConfirmationLevel, input string) bool {
	switch level {
	case ConfirmNone:
		return true
	case ConfirmStrong:
		return input == StrongConfirmPhrase
	default:
		return lightweightWords[normalizeConfirmInput(input)]
	}
}

func normalizeConfirmInput(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
