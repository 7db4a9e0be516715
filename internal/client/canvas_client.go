package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Canvas-Auto-Quiz-Backend/internal/extract"
	"Canvas-Auto-Quiz-Backend/internal/model"
	"Canvas-Auto-Quiz-Backend/internal/session"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrAttemptNotStarted 测验尚未开始且调用方未允许自动开始。
	// 开始一次计时作答不可撤销，必须由上层确认后重试。
	ErrAttemptNotStarted = errors.New("quiz attempt not started")
	// ErrAttemptStartFailed 发出了开始请求但响应页面中没有题目容器。
	ErrAttemptStartFailed = errors.New("quiz attempt start failed")
)

type CanvasClient struct {
	BaseURL    string
	Session    *session.Session
	HTTPClient *http.Client
}

func NewCanvasClient(baseURL string, sess *session.Session, timeoutSec int) *CanvasClient {
	return &CanvasClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Session: sess,
		HTTPClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

func setCommonHeaders(req *http.Request, referer string) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// FetchQuizPage 拉取作答页面并解析为文档；doc.Url 保留最终URL，供相对地址解析。
func (c *CanvasClient) FetchQuizPage(quizURL string) (*goquery.Document, error) {
	req, err := http.NewRequest("GET", quizURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构造作答页面请求失败: %w", err)
	}
	setCommonHeaders(req, c.BaseURL+"/")
	c.Session.Apply(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求作答页面失败: %w", err)
	}
	defer resp.Body.Close()
	c.Session.Refresh(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("作答页面返回错误状态: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析作答页面HTML失败: %w", err)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}

// ProbeAttemptState 只读探测：题目容器存在即认为作答进行中，不改变服务端状态。
// 请求本身失败时状态退化为 Unknown 并带回传输错误。
func (c *CanvasClient) ProbeAttemptState(quizURL string) (model.AttemptState, *goquery.Document, error) {
	doc, err := c.FetchQuizPage(quizURL)
	if err != nil {
		return model.AttemptUnknown, nil, fmt.Errorf("探测作答状态失败: %w", err)
	}
	if extract.HasQuestionContainer(doc) {
		return model.AttemptInProgress, doc, nil
	}
	return model.AttemptNotStarted, doc, nil
}

// StartAttempt 发出开始/继续作答的表单POST。服务端没有显式的成功标志，
// 唯一的成功判据是返回页面里出现了题目容器。
func (c *CanvasClient) StartAttempt(quizURL, userID string) (*goquery.Document, error) {
	formData := url.Values{
		"user_id":            {userID},
		"_method":            {"post"},
		"authenticity_token": {c.Session.CSRFToken()},
	}

	req, err := http.NewRequest("POST", quizURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("构造开始作答请求失败: %w", err)
	}
	setCommonHeaders(req, quizURL)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Session.Apply(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("开始作答请求失败: %w", err)
	}
	defer resp.Body.Close()
	c.Session.Refresh(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("开始作答API返回错误状态: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析开始作答响应失败: %w", err)
	}
	doc.Url = resp.Request.URL

	if !extract.HasQuestionContainer(doc) {
		log.Printf("[Client] 开始作答后页面中仍无题目容器，判定为失败。")
		return nil, ErrAttemptStartFailed
	}
	log.Printf("[Client] 作答已开始，题目容器已出现。")
	return doc, nil
}

// SubmitForm 提交最终表单。提交是整个流程唯一不允许静默兜底的环节：
// 任何错误原样上抛，绝不自动重试，重试可能造成重复提交。
func (c *CanvasClient) SubmitForm(action string, formData url.Values) ([]byte, error) {
	req, err := http.NewRequest("POST", action, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("构造提交请求失败: %w", err)
	}
	setCommonHeaders(req, c.BaseURL+"/")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", c.BaseURL)
	c.Session.Apply(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("提交试卷请求失败: %w", err)
	}
	defer resp.Body.Close()
	c.Session.Refresh(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取提交响应体失败: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		log.Printf("!!! 错误: 提交API返回非成功状态。状态码: %s, 响应体: %s", resp.Status, string(body))
		return body, fmt.Errorf("提交API返回错误状态: %s", resp.Status)
	}

	return body, nil
}
