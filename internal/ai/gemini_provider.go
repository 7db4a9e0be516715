package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"Canvas-Auto-Quiz-Backend/internal/model"

	"github.com/sourcegraph/conc/pool"
)

const defaultUploadWorkers = 5

// geminiProvider Google Gemini。媒体先经文件接口上传，换回持久的文件URI，
// 提示词里直接用该URI引用。
type geminiProvider struct {
	baseURL       string
	apiKey        string
	model         string
	uploadWorkers int
	httpClient    *http.Client
}

type geminiUploadResponse struct {
	File struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func newGeminiProvider(opts Options) *geminiProvider {
	workers := opts.UploadWorkers
	if workers <= 0 {
		workers = defaultUploadWorkers
	}
	return &geminiProvider{
		baseURL:       opts.BaseURL,
		apiKey:        opts.APIKey,
		model:         opts.Model,
		uploadWorkers: workers,
		httpClient: &http.Client{
			Timeout: time.Duration(opts.TimeoutSec) * time.Second,
		},
	}
}

func (p *geminiProvider) Name() string { return "gemini" }

// UploadMedia 用固定宽度的小工作池并发上传。单个文件上传失败只跳过，
// 不能因为一张图拖垮整次推理。
func (p *geminiProvider) UploadMedia(refs []*model.MediaRef) ([]MediaHandle, error) {
	uploaded := make([]MediaHandle, len(refs))
	var mu sync.Mutex

	up := pool.New().WithMaxGoroutines(p.uploadWorkers)
	for i, ref := range refs {
		up.Go(func() {
			handle, err := p.uploadOne(ref)
			if err != nil {
				log.Printf("[AI] 警告: 上传媒体 '%s' 失败 (跳过): %v", ref.LocalPath, err)
				return
			}
			mu.Lock()
			uploaded[i] = handle
			mu.Unlock()
		})
	}
	up.Wait()

	var handles []MediaHandle
	for _, h := range uploaded {
		if h.Ref != nil {
			handles = append(handles, h)
		}
	}
	log.Printf("[AI] Gemini媒体上传完成: %d/%d 成功。", len(handles), len(refs))
	return handles, nil
}

func (p *geminiProvider) uploadOne(ref *model.MediaRef) (MediaHandle, error) {
	data, err := os.ReadFile(ref.LocalPath)
	if err != nil {
		return MediaHandle{}, fmt.Errorf("读取媒体文件失败: %w", err)
	}

	uploadURL := fmt.Sprintf("%s/upload/v1beta/files?key=%s", p.baseURL, p.apiKey)
	req, _ := http.NewRequest("POST", uploadURL, bytes.NewReader(data))
	req.Header.Set("Content-Type", mediaMIME(ref.LocalPath))
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return MediaHandle{}, fmt.Errorf("上传请求失败: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return MediaHandle{}, fmt.Errorf("读取上传响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return MediaHandle{}, fmt.Errorf("上传接口返回错误状态: %s, 响应体: %s", resp.Status, string(bodyBytes))
	}

	var uploadResp geminiUploadResponse
	if err := json.Unmarshal(bodyBytes, &uploadResp); err != nil {
		return MediaHandle{}, fmt.Errorf("解析上传响应失败: %w", err)
	}
	if uploadResp.File.URI == "" {
		return MediaHandle{}, fmt.Errorf("上传响应中没有文件URI")
	}

	return MediaHandle{Ref: ref, Marker: uploadResp.File.URI, URI: uploadResp.File.URI}, nil
}

func (p *geminiProvider) Complete(prompt string, handles []MediaHandle) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	for _, h := range handles {
		parts = append(parts, geminiPart{
			FileData: &geminiFileData{
				MimeType: mediaMIME(h.Ref.LocalPath),
				FileURI:  h.URI,
			},
		})
	}

	payload := geminiGenerateRequest{Contents: []geminiContent{{Parts: parts}}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化Gemini请求失败: %w", err)
	}

	genURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, _ := http.NewRequest("POST", genURL, bytes.NewBuffer(payloadBytes))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Gemini请求失败: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Gemini响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("!!! 错误: Gemini接口返回非200状态。状态码: %s, 响应体: %s", resp.Status, string(bodyBytes))
		return "", fmt.Errorf("Gemini接口返回错误状态: %s", resp.Status)
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(bodyBytes, &genResp); err != nil {
		log.Printf("!!! 错误: 解析Gemini响应JSON失败。原始响应体如下: !!!\n%s\n", string(bodyBytes))
		return "", fmt.Errorf("解析Gemini响应失败: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini响应中没有任何回答")
	}

	var sb bytes.Buffer
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
