package api

import (
	"errors"
	"net/http"
	"sync"

	"Canvas-Auto-Quiz-Backend/internal/ai"
	"Canvas-Auto-Quiz-Backend/internal/client"
	"Canvas-Auto-Quiz-Backend/internal/service"

	"github.com/gin-gonic/gin"
)

type SolveRequest struct {
	QuizURL     string `json:"quiz_url" binding:"required"`
	AutoStart   bool   `json:"auto_start"`
	SkipConfirm bool   `json:"skip_confirm"`
	DryRun      bool   `json:"dry_run"`
}

type QuizHandler struct {
	quizService *service.QuizService
	// 会话是单写者：流水线在每个响应后刷新Cookie/CSRF令牌，
	// 而 serve 模式下所有请求共享同一个会话，必须逐个跑。
	mu sync.Mutex
}

func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// SolveHandler HTTP调用方没有交互通道，确认回调留空：
// 未显式传 skip_confirm 时，任何需要确认的提交都会被拒绝而不是静默提交。
func (h *QuizHandler) SolveHandler(c *gin.Context) {
	var req SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数无效: " + err.Error()})
		return
	}

	h.mu.Lock()
	outcome, err := h.quizService.Solve(service.SolveOptions{
		QuizURL:     req.QuizURL,
		AutoStart:   req.AutoStart,
		SkipConfirm: req.SkipConfirm,
		DryRun:      req.DryRun,
	})
	h.mu.Unlock()
	if err != nil {
		h.handleSolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "自动作答完成",
		"answered_count": outcome.AnsweredCount,
		"total_count":    outcome.TotalCount,
		"unanswered":     outcome.Unanswered,
	})
}

func (h *QuizHandler) handleSolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, client.ErrAttemptNotStarted):
		c.JSON(http.StatusConflict, gin.H{
			"error": "测验尚未开始。开始计时作答不可撤销，请显式传入 auto_start=true。",
		})
	case errors.Is(err, service.ErrSubmitAborted):
		c.JSON(http.StatusConflict, gin.H{
			"error": "提交前需要人工确认，HTTP调用方无法交互。确认无误请传入 skip_confirm=true。",
		})
	case errors.Is(err, client.ErrAttemptStartFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "发起作答失败，响应页面中没有题目。"})
	default:
		var parseErr *ai.AnswerParseError
		if errors.As(err, &parseErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "AI回答无法解析",
				"raw":   parseErr.Raw,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "自动作答失败",
			"details": err.Error(),
		})
	}
}
