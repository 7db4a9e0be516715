package ai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"Canvas-Auto-Quiz-Backend/internal/model"
)

// openAIProvider 任意 OpenAI 兼容的 /chat/completions 服务。
// 没有独立的文件上传接口，图片内联为 data URL，提示词里按序号引用。
type openAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newOpenAIProvider(opts Options) *openAIProvider {
	return &openAIProvider{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		httpClient: &http.Client{
			Timeout: time.Duration(opts.TimeoutSec) * time.Second,
		},
	}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) UploadMedia(refs []*model.MediaRef) ([]MediaHandle, error) {
	var handles []MediaHandle
	for _, ref := range refs {
		data, err := os.ReadFile(ref.LocalPath)
		if err != nil {
			log.Printf("[AI] 警告: 读取媒体文件 '%s' 失败 (跳过): %v", ref.LocalPath, err)
			continue
		}
		handles = append(handles, MediaHandle{
			Ref:    ref,
			Marker: fmt.Sprintf("图片%d", len(handles)+1),
			URI:    "data:" + mediaMIME(ref.LocalPath) + ";base64," + base64.StdEncoding.EncodeToString(data),
		})
	}
	return handles, nil
}

func (p *openAIProvider) Complete(prompt string, handles []MediaHandle) (string, error) {
	msg := model.AIMessage{Role: "user", Content: prompt}
	if len(handles) > 0 {
		parts := []model.AIContentPart{{Type: "text", Text: prompt}}
		for _, h := range handles {
			parts = append(parts, model.AIContentPart{
				Type:     "image_url",
				ImageURL: &model.AIImageURL{URL: h.URI},
			})
		}
		msg.Content = parts
	}

	payload := model.AIChatRequest{
		Model:    p.model,
		Messages: []model.AIMessage{msg},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化AI请求失败: %w", err)
	}

	req, _ := http.NewRequest("POST", p.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("AI请求失败: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取AI响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("!!! 错误: AI接口返回非200状态。状态码: %s, 响应体: %s", resp.Status, string(bodyBytes))
		return "", fmt.Errorf("AI接口返回错误状态: %s", resp.Status)
	}

	var aiResponse model.AIChatResponse
	if err := json.Unmarshal(bodyBytes, &aiResponse); err != nil {
		log.Printf("!!! 错误: 解析AI响应JSON失败。原始响应体如下: !!!\n%s\n", string(bodyBytes))
		return "", fmt.Errorf("解析AI响应JSON失败: %w", err)
	}
	if len(aiResponse.Choices) == 0 {
		log.Printf("--- AI响应中 choices 为空 ---\nRaw Body: %s\n", string(bodyBytes))
		return "", fmt.Errorf("AI响应中没有任何回答")
	}

	return aiResponse.Choices[0].Message.Content, nil
}
