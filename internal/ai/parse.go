package ai

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"Canvas-Auto-Quiz-Backend/internal/model"

	"github.com/kaptinlin/jsonrepair"
)

// AnswerParseError 所有解析策略都失败后抛出，带上原始文本便于排查。
type AnswerParseError struct {
	Raw string
}

func (e *AnswerParseError) Error() string {
	return fmt.Sprintf("无法从AI回答中解析出答案JSON (原始长度 %d)", len(e.Raw))
}

var fenceRegexp = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

type parseStrategy struct {
	name string
	fn   func(string) (model.AnswerMap, error)
}

var parseStrategies = []parseStrategy{
	{"直接解析", parseJSONObject},
	{"剥离代码围栏", parseFenced},
	{"提取花括号块", parseBraced},
	{"jsonrepair修复", parseRepaired},
}

// ParseAnswerMap 按固定顺序尝试各解析策略，第一个成功者胜出。
// AI的回答经常混着解释文字或Markdown围栏，严格解析只是第一层。
func ParseAnswerMap(raw string) (model.AnswerMap, error) {
	for _, strategy := range parseStrategies {
		answers, err := strategy.fn(raw)
		if err == nil {
			if strategy.name != parseStrategies[0].name {
				log.Printf("[AI] 答案JSON经 '%s' 策略解析成功。", strategy.name)
			}
			return answers, nil
		}
	}
	return nil, &AnswerParseError{Raw: raw}
}

func parseJSONObject(text string) (model.AnswerMap, error) {
	var loose map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &loose); err != nil {
		return nil, err
	}

	answers := make(model.AnswerMap, len(loose))
	for qid, value := range loose {
		switch v := value.(type) {
		case string:
			answers[qid] = v
		case float64:
			// 模型偶尔把选项ID当成数字返回
			answers[qid] = strconv.FormatInt(int64(v), 10)
		default:
			log.Printf("[AI] 警告: 题目 '%s' 的答案类型异常 (%T)，丢弃。", qid, value)
		}
	}
	return answers, nil
}

func parseFenced(text string) (model.AnswerMap, error) {
	matches := fenceRegexp.FindStringSubmatch(text)
	if len(matches) < 2 {
		return nil, fmt.Errorf("回答中没有代码围栏")
	}
	return parseJSONObject(matches[1])
}

// parseBraced 取第一个配平的 {...} 块，用于前后裹着闲聊文字的回答。
func parseBraced(text string) (model.AnswerMap, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("回答中没有花括号块")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseJSONObject(text[start : i+1])
			}
		}
	}
	return nil, fmt.Errorf("花括号块不配平")
}

func parseRepaired(text string) (model.AnswerMap, error) {
	candidate := text
	if matches := fenceRegexp.FindStringSubmatch(text); len(matches) >= 2 {
		candidate = matches[1]
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("jsonrepair修复失败: %w", err)
	}
	return parseJSONObject(repaired)
}
