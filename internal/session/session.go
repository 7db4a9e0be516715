package session

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
)

const csrfCookieName = "_csrf_token"

// Session 持有一次自动化运行所用的已登录 Cookie 和当前 CSRF 令牌。
// 整个流水线单线程写入：每次网络调用之后由调用方执行 Refresh，不存在并发写。
type Session struct {
	cookies   map[string]string
	csrfToken string
}

func New(cookies map[string]string) *Session {
	s := &Session{cookies: make(map[string]string, len(cookies))}
	for name, value := range cookies {
		s.cookies[name] = value
	}
	s.syncCSRFToken()
	return s
}

// LoadFromFile 从外部登录流程导出的 cookies.json（name -> value）恢复会话。
func LoadFromFile(path string) (*Session, error) {
	byteValue, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取Cookie文件 '%s': %w", path, err)
	}

	var cookies map[string]string
	if err := json.Unmarshal(byteValue, &cookies); err != nil {
		return nil, fmt.Errorf("解析Cookie文件失败: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("Cookie文件 '%s' 为空，请先完成登录抓取", path)
	}

	s := New(cookies)
	log.Printf("[Session] 已从 '%s' 加载 %d 条Cookie。", path, len(cookies))
	if s.csrfToken == "" {
		log.Printf("[Session] 警告: 未发现 %s Cookie，CSRF令牌将在首个响应后同步。", csrfCookieName)
	}
	return s, nil
}

// Apply 为出站请求附加全部Cookie，并带上当前的CSRF请求头。
func (s *Session) Apply(req *http.Request) {
	for name, value := range s.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if s.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", s.csrfToken)
	}
}

// Refresh 回读响应中的 Set-Cookie；服务端会在部分请求后轮换 CSRF Cookie，
// 因此每个响应之后都必须调用一次。
func (s *Session) Refresh(resp *http.Response) {
	if resp == nil {
		return
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Value == "" {
			continue
		}
		s.cookies[cookie.Name] = cookie.Value
	}
	s.syncCSRFToken()
}

func (s *Session) CSRFToken() string {
	return s.csrfToken
}

func (s *Session) Cookie(name string) string {
	return s.cookies[name]
}

// syncCSRFToken Cookie 中的令牌是 URL 编码的，解码后才能放进请求头。
func (s *Session) syncCSRFToken() {
	raw, ok := s.cookies[csrfCookieName]
	if !ok || raw == "" {
		return
	}
	token, err := url.QueryUnescape(raw)
	if err != nil {
		log.Printf("[Session] 警告: CSRF Cookie解码失败，按原值使用: %v", err)
		token = raw
	}
	s.csrfToken = token
}
