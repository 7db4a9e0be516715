package ai

import (
	"testing"

	"Canvas-Auto-Quiz-Backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	response   string
	lastPrompt string
	handles    []MediaHandle
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) UploadMedia(refs []*model.MediaRef) ([]MediaHandle, error) {
	var handles []MediaHandle
	for i, ref := range refs {
		handles = append(handles, MediaHandle{Ref: ref, Marker: "图片" + string(rune('1'+i)), URI: "stub://" + ref.SourceURL})
	}
	s.handles = handles
	return handles, nil
}

func (s *stubProvider) Complete(prompt string, handles []MediaHandle) (string, error) {
	s.lastPrompt = prompt
	return s.response, nil
}

func sampleQuestions() []*model.Question {
	return []*model.Question{
		{
			ID:   "101",
			Text: "第一题",
			Answers: []model.Answer{
				{ID: "1001", Text: "甲"},
				{ID: "1002", Text: "乙"},
			},
		},
		{
			ID:   "102",
			Text: "第二题",
			Answers: []model.Answer{
				{ID: "2001", Text: "丙"},
			},
		},
	}
}

func TestResolveFencedResponse(t *testing.T) {
	stub := &stubProvider{response: "```json\n{\"101\":\"1002\",\"102\":\"2001\"}\n```"}
	answers, err := NewResolver(stub).Resolve(sampleQuestions())
	require.NoError(t, err)
	assert.Equal(t, model.AnswerMap{"101": "1002", "102": "2001"}, answers)
}

// 幻觉出的选项ID逐条丢弃，不拖垮其余正确答案
func TestResolveDropsHallucinatedEntries(t *testing.T) {
	stub := &stubProvider{response: `{"101":"9999","102":"2001","999":"1"}`}
	answers, err := NewResolver(stub).Resolve(sampleQuestions())
	require.NoError(t, err)
	assert.Equal(t, model.AnswerMap{"102": "2001"}, answers)

	_, has := answers["101"]
	assert.False(t, has)
}

func TestResolvePromptContainsQuestionsAndOptions(t *testing.T) {
	stub := &stubProvider{response: `{"101":"1001"}`}
	_, err := NewResolver(stub).Resolve(sampleQuestions())
	require.NoError(t, err)

	assert.Contains(t, stub.lastPrompt, "--- 题目 101 ---")
	assert.Contains(t, stub.lastPrompt, "第一题")
	assert.Contains(t, stub.lastPrompt, "[1001] 甲")
	assert.Contains(t, stub.lastPrompt, "[2001] 丙")
}

func TestResolveOnlyFetchedMediaReferenced(t *testing.T) {
	fetched := &model.MediaRef{SourceURL: "https://x/f.png", LocalPath: "/tmp/f.png", Fetched: true}
	missed := &model.MediaRef{SourceURL: "https://x/m.png", LocalPath: "/tmp/m.png"}
	questions := []*model.Question{
		{
			ID:     "1",
			Text:   "图题",
			Images: []*model.MediaRef{fetched, missed},
			Answers: []model.Answer{
				{ID: "11", Text: "甲"},
			},
		},
	}

	stub := &stubProvider{response: `{"1":"11"}`}
	_, err := NewResolver(stub).Resolve(questions)
	require.NoError(t, err)

	require.Len(t, stub.handles, 1)
	assert.Same(t, fetched, stub.handles[0].Ref)
	assert.Contains(t, stub.lastPrompt, stub.handles[0].Marker)
}

func TestResolveParseFailureSurfacesRaw(t *testing.T) {
	stub := &stubProvider{response: "抱歉，这题我做不了。"}
	_, err := NewResolver(stub).Resolve(sampleQuestions())

	var parseErr *AnswerParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "抱歉，这题我做不了。", parseErr.Raw)
}
