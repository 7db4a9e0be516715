package service

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"Canvas-Auto-Quiz-Backend/internal/ai"
	"Canvas-Auto-Quiz-Backend/internal/client"
	"Canvas-Auto-Quiz-Backend/internal/media"
	"Canvas-Auto-Quiz-Backend/internal/model"
	"Canvas-Auto-Quiz-Backend/internal/repository"
	"Canvas-Auto-Quiz-Backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizPageHTML = `<html><body>
<div id="questions">
  <div class="question" id="question_101">
    <div class="question_text">第一题</div>
    <div class="answer"><input type="radio" name="question_101" value="1001"><label>甲</label></div>
    <div class="answer"><input type="radio" name="question_101" value="1002"><label>乙</label></div>
  </div>
  <div class="question" id="question_102">
    <div class="question_text">第二题</div>
    <div class="answer"><input type="radio" name="question_102" value="2001"><label>丙</label></div>
  </div>
  <div class="question" id="question_103">
    <div class="question_text">第三题</div>
    <div class="answer"><input type="radio" name="question_103" value="3001"><label>丁</label></div>
  </div>
</div>
<form id="submit_quiz_form" action="/courses/1/quizzes/2/submit" method="post">
  <input type="hidden" name="authenticity_token" value="csrf-hidden">
  <input type="hidden" name="validation_token" value="v-token">
  <input type="hidden" name="attempt" value="1">
</form>
</body></html>`

const notStartedHTML = `<html><body><div id="quiz_details">尚未开始</div></body></html>`

type canvasStub struct {
	srv *httptest.Server

	mu          sync.Mutex
	started     bool
	startFails  bool
	startForm   url.Values
	submitForm  url.Values
	submitCount int
}

// newCanvasStub 起一个最小的测验站点：未开始的测验在收到开始POST前
// 只返回详情页，开始后返回作答页面；提交端点记录收到的表单。
func newCanvasStub(t *testing.T, alreadyInProgress bool) *canvasStub {
	t.Helper()
	cs := &canvasStub{started: alreadyInProgress}
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/1/quizzes/2/take", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			cs.startForm = r.PostForm
			if !cs.startFails {
				cs.started = true
			}
		}
		if cs.started {
			_, _ = w.Write([]byte(quizPageHTML))
			return
		}
		_, _ = w.Write([]byte(notStartedHTML))
	})
	mux.HandleFunc("/courses/1/quizzes/2/submit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		cs.mu.Lock()
		cs.submitForm = r.PostForm
		cs.submitCount++
		cs.mu.Unlock()
		_, _ = w.Write([]byte("<html>已提交</html>"))
	})
	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *canvasStub) takeURL() string {
	return cs.srv.URL + "/courses/1/quizzes/2/take"
}

type fixedProvider struct {
	response string
}

func (p *fixedProvider) Name() string { return "fixed" }
func (p *fixedProvider) UploadMedia(refs []*model.MediaRef) ([]ai.MediaHandle, error) {
	return nil, nil
}
func (p *fixedProvider) Complete(prompt string, handles []ai.MediaHandle) (string, error) {
	return p.response, nil
}

func newTestService(t *testing.T, cs *canvasStub, aiResponse string) *QuizService {
	t.Helper()
	sess := session.New(map[string]string{"_csrf_token": "csrf-cookie", "canvas_session": "s"})
	canvasClient := client.NewCanvasClient(cs.srv.URL, sess, 5)
	fetcher := media.NewFetcher(sess, 2, 5)
	repo, err := repository.NewAttemptRepository(t.TempDir())
	require.NoError(t, err)
	resolver := ai.NewResolver(&fixedProvider{response: aiResponse})
	return NewQuizService(canvasClient, fetcher, resolver, repo, "777", t.TempDir())
}

// 场景A：三题全答对齐 → 轻量确认 → 提交载荷包含三个题目键和全部隐藏字段
func TestSolveCompleteQuizSubmitsFullPayload(t *testing.T) {
	cs := newCanvasStub(t, true)
	svc := newTestService(t, cs, `{"101":"1002","102":"2001","103":"3001"}`)

	var confirmedLevel ConfirmationLevel
	outcome, err := svc.Solve(SolveOptions{
		QuizURL: cs.takeURL(),
		Confirm: func(level ConfirmationLevel, unanswered []string) bool {
			confirmedLevel = level
			assert.Empty(t, unanswered)
			return AcceptsConfirmation(level, "yes")
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ConfirmLightweight, confirmedLevel)
	assert.Equal(t, 3, outcome.AnsweredCount)
	assert.Equal(t, 3, outcome.TotalCount)
	assert.Empty(t, outcome.Unanswered)
	assert.Contains(t, string(outcome.ServerResponse), "已提交")

	assert.Equal(t, 1, cs.submitCount)
	assert.Equal(t, "1002", cs.submitForm.Get("question_101"))
	assert.Equal(t, "2001", cs.submitForm.Get("question_102"))
	assert.Equal(t, "3001", cs.submitForm.Get("question_103"))
	// 隐藏字段原样回传
	assert.Equal(t, "csrf-hidden", cs.submitForm.Get("authenticity_token"))
	assert.Equal(t, "v-token", cs.submitForm.Get("validation_token"))
	assert.Equal(t, "1", cs.submitForm.Get("attempt"))
}

// 场景B：一题未答 → 走强确认；确认被拒则不发出任何提交请求
func TestSolveIncompleteQuizRequiresStrongConfirmation(t *testing.T) {
	cs := newCanvasStub(t, true)
	svc := newTestService(t, cs, `{"101":"1002","102":"2001"}`)

	var confirmedLevel ConfirmationLevel
	_, err := svc.Solve(SolveOptions{
		QuizURL: cs.takeURL(),
		Confirm: func(level ConfirmationLevel, unanswered []string) bool {
			confirmedLevel = level
			assert.Equal(t, []string{"103"}, unanswered)
			// 轻量确认词在强确认门前无效
			return AcceptsConfirmation(level, "yes")
		},
	})
	require.ErrorIs(t, err, ErrSubmitAborted)
	assert.Equal(t, ConfirmStrong, confirmedLevel)
	assert.Equal(t, 0, cs.submitCount)
}

func TestSolveIncompleteWithSkipConfirmSubmits(t *testing.T) {
	cs := newCanvasStub(t, true)
	svc := newTestService(t, cs, `{"101":"1002","102":"2001"}`)

	outcome, err := svc.Solve(SolveOptions{
		QuizURL:     cs.takeURL(),
		SkipConfirm: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.AnsweredCount)
	assert.Equal(t, []string{"103"}, outcome.Unanswered)
	assert.Equal(t, 1, cs.submitCount)
	// 未作答的题目不出现在载荷里
	_, present := cs.submitForm["question_103"]
	assert.False(t, present)
}

func TestSolveNotStartedWithoutAutoStart(t *testing.T) {
	cs := newCanvasStub(t, false)
	svc := newTestService(t, cs, `{}`)

	_, err := svc.Solve(SolveOptions{QuizURL: cs.takeURL()})
	require.ErrorIs(t, err, client.ErrAttemptNotStarted)
	assert.Equal(t, 0, cs.submitCount)
}

func TestSolveNotStartedWithAutoStart(t *testing.T) {
	cs := newCanvasStub(t, false)
	svc := newTestService(t, cs, `{"101":"1002","102":"2001","103":"3001"}`)

	outcome, err := svc.Solve(SolveOptions{
		QuizURL:     cs.takeURL(),
		AutoStart:   true,
		SkipConfirm: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.AnsweredCount)

	// 开始作答POST带上了用户ID、method覆盖和CSRF令牌
	assert.Equal(t, "777", cs.startForm.Get("user_id"))
	assert.Equal(t, "post", cs.startForm.Get("_method"))
	assert.Equal(t, "csrf-cookie", cs.startForm.Get("authenticity_token"))
}

// 开始POST发出去了但页面里始终没有题目容器：判定为开始失败，决不能走到提交
func TestSolveStartFailureWhenContainerNeverAppears(t *testing.T) {
	cs := newCanvasStub(t, false)
	cs.startFails = true
	svc := newTestService(t, cs, `{}`)

	_, err := svc.Solve(SolveOptions{
		QuizURL:     cs.takeURL(),
		AutoStart:   true,
		SkipConfirm: true,
	})
	require.ErrorIs(t, err, client.ErrAttemptStartFailed)
	// 开始请求确实发出过
	assert.Equal(t, "777", cs.startForm.Get("user_id"))
	assert.Equal(t, 0, cs.submitCount)
}

func TestSolveDryRunStopsBeforeAI(t *testing.T) {
	cs := newCanvasStub(t, true)
	svc := newTestService(t, cs, "这个回答不应被用到")

	outcome, err := svc.Solve(SolveOptions{QuizURL: cs.takeURL(), DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.TotalCount)
	assert.Equal(t, 0, outcome.AnsweredCount)
	assert.Equal(t, 0, cs.submitCount)
}
