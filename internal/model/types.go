package model

// AttemptState 表示一次测验作答的状态，仅由探测请求推导，不做持久化。
type AttemptState int

const (
	AttemptUnknown AttemptState = iota
	AttemptNotStarted
	AttemptInProgress
)

func (s AttemptState) String() string {
	switch s {
	case AttemptNotStarted:
		return "NotStarted"
	case AttemptInProgress:
		return "InProgress"
	default:
		return "Unknown"
	}
}

// MediaRef 以 SourceURL 为键全局唯一；引用同一 URL 的题目/选项共享同一实例。
// Fetched 只会从 false 变为 true。
type MediaRef struct {
	SourceURL string `json:"sourceUrl"`
	LocalPath string `json:"localPath"`
	Fetched   bool   `json:"fetched"`
}

type Question struct {
	ID      string      `json:"id"`
	Text    string      `json:"text"`
	Images  []*MediaRef `json:"images,omitempty"`
	Answers []Answer    `json:"answers"`
}

type Answer struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Images []*MediaRef `json:"images,omitempty"`
}

// AnswerMap 题目ID -> 所选选项ID。由 AnswerResolver 整体生成，整体替换，不做增量合并。
type AnswerMap map[string]string

type SubmissionOutcome struct {
	AnsweredCount  int      `json:"answeredCount"`
	TotalCount     int      `json:"totalCount"`
	Unanswered     []string `json:"unanswered,omitempty"`
	ServerResponse []byte   `json:"-"`
}

type AIChatRequest struct {
	Model    string      `json:"model"`
	Messages []AIMessage `json:"messages"`
}

// AIMessage 的 Content 为纯文本时是 string，带图片时是 []AIContentPart。
type AIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type AIContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *AIImageURL `json:"image_url,omitempty"`
}

type AIImageURL struct {
	URL string `json:"url"`
}

type AIChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
