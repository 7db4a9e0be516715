package service

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"path/filepath"

	"Canvas-Auto-Quiz-Backend/internal/ai"
	"Canvas-Auto-Quiz-Backend/internal/client"
	"Canvas-Auto-Quiz-Backend/internal/extract"
	"Canvas-Auto-Quiz-Backend/internal/media"
	"Canvas-Auto-Quiz-Backend/internal/model"
	"Canvas-Auto-Quiz-Backend/internal/repository"
	"Canvas-Auto-Quiz-Backend/internal/utils"

	"github.com/PuerkitoBio/goquery"
)

// ErrSubmitAborted 用户拒绝确认，提交被放弃。属于正常分支而非故障。
var ErrSubmitAborted = errors.New("submission aborted by caller")

type QuizService struct {
	canvasClient *client.CanvasClient
	mediaFetcher *media.Fetcher
	resolver     *ai.Resolver
	attemptRepo  *repository.AttemptRepository
	userID       string
	mediaDir     string
}

func NewQuizService(canvasClient *client.CanvasClient, mediaFetcher *media.Fetcher, resolver *ai.Resolver, attemptRepo *repository.AttemptRepository, userID, mediaDir string) *QuizService {
	return &QuizService{
		canvasClient: canvasClient,
		mediaFetcher: mediaFetcher,
		resolver:     resolver,
		attemptRepo:  attemptRepo,
		userID:       userID,
		mediaDir:     mediaDir,
	}
}

// SolveOptions 一次自动作答的全部开关。
// Confirm 为人工确认回调；为 nil 时任何需要确认的提交都会被放弃。
type SolveOptions struct {
	QuizURL     string
	AutoStart   bool
	SkipConfirm bool
	DryRun      bool
	Confirm     func(level ConfirmationLevel, unanswered []string) bool
}

// Solve 完整流水线：探测 → (开始) → 解析 → 下载媒体 → AI解答 → 校验 → 提交。
// 各阶段严格串行，中途失败不可续作，调用方只能整体重试。
func (s *QuizService) Solve(opts SolveOptions) (*model.SubmissionOutcome, error) {
	runID, err := utils.GenerateRunID()
	if err != nil {
		return nil, fmt.Errorf("生成运行ID失败: %w", err)
	}
	fmt.Printf("开始处理测验: %s (运行ID: %s)\n", opts.QuizURL, runID)

	doc, err := s.ensureAttempt(opts)
	if err != nil {
		return nil, err
	}

	extraction, err := extract.ExtractQuestions(doc, filepath.Join(s.mediaDir, runID))
	if err != nil {
		return nil, err
	}
	fmt.Printf("解析出 %d 道题目。\n", len(extraction.Questions))

	s.mediaFetcher.FetchAll(extraction.Media)

	if err := s.attemptRepo.SaveQuestions(runID, extraction.Questions); err != nil {
		log.Printf("[Service] 警告: 保存题目快照失败: %v", err)
	}

	if opts.DryRun {
		fmt.Println("预览模式：跳过AI解答与提交。")
		return &model.SubmissionOutcome{TotalCount: len(extraction.Questions)}, nil
	}

	answers, err := s.resolver.Resolve(extraction.Questions)
	if err != nil {
		return nil, err
	}
	if err := s.attemptRepo.SaveAnswers(runID, answers); err != nil {
		log.Printf("[Service] 警告: 保存答案快照失败: %v", err)
	}

	unanswered := Unanswered(extraction.Questions, answers)
	fmt.Printf("AI解答完成: %d/%d 题已作答。\n", len(answers), len(extraction.Questions))

	level := RequiresConfirmation(unanswered, opts.SkipConfirm)
	if level != ConfirmNone {
		if opts.Confirm == nil || !opts.Confirm(level, unanswered) {
			return nil, ErrSubmitAborted
		}
	}

	form, err := extract.ExtractSubmissionForm(doc)
	if err != nil {
		return nil, err
	}
	payload := buildSubmissionPayload(form.Hidden, answers)

	fmt.Println("正在提交试卷...")
	body, err := s.canvasClient.SubmitForm(form.Action, payload)
	if err != nil {
		return nil, err
	}
	if err := s.attemptRepo.SaveResponse(runID, body); err != nil {
		log.Printf("[Service] 警告: 保存提交响应失败: %v", err)
	}
	fmt.Println("试卷提交成功！")

	return &model.SubmissionOutcome{
		AnsweredCount:  len(answers),
		TotalCount:     len(extraction.Questions),
		Unanswered:     unanswered,
		ServerResponse: body,
	}, nil
}

// ensureAttempt 把作答推进到"进行中"。尚未开始且未允许自动开始时返回哨兵错误，
// 由上层确认后带着 AutoStart 重来——计时作答一旦开始就收不回。
func (s *QuizService) ensureAttempt(opts SolveOptions) (*goquery.Document, error) {
	state, doc, err := s.canvasClient.ProbeAttemptState(opts.QuizURL)
	if err != nil {
		return nil, err
	}
	switch state {
	case model.AttemptInProgress:
		fmt.Println("作答已在进行中，继续处理。")
		return doc, nil
	case model.AttemptNotStarted:
		if !opts.AutoStart {
			return nil, client.ErrAttemptNotStarted
		}
		fmt.Println("作答尚未开始，正在发起新的作答...")
		return s.canvasClient.StartAttempt(opts.QuizURL, s.userID)
	default:
		return nil, fmt.Errorf("无法确定作答状态")
	}
}

// buildSubmissionPayload 隐藏字段原样回传，答案字段覆盖在其上。
func buildSubmissionPayload(hidden url.Values, answers model.AnswerMap) url.Values {
	payload := url.Values{}
	for name, values := range hidden {
		for _, v := range values {
			payload.Add(name, v)
		}
	}
	for qid, aid := range answers {
		payload.Set("question_"+qid, aid)
	}
	return payload
}
