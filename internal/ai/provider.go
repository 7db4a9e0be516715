package ai

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"Canvas-Auto-Quiz-Backend/internal/model"
)

// MediaHandle 某个媒体在AI提供商侧的引用。
// Marker 是写进提示词的标记（Gemini为文件URI，OpenAI兼容接口为"图片N"序号），
// URI 是随请求附带的实际载荷（文件URI或data URL）。
type MediaHandle struct {
	Ref    *model.MediaRef
	Marker string
	URI    string
}

// Provider 外部AI推理服务的最小契约：先把媒体换成提供商侧句柄，再发起推理。
type Provider interface {
	Name() string
	UploadMedia(refs []*model.MediaRef) ([]MediaHandle, error)
	Complete(prompt string, handles []MediaHandle) (string, error)
}

type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	TimeoutSec    int
	UploadWorkers int
}

func NewProvider(name string, opts Options) (Provider, error) {
	switch strings.ToLower(name) {
	case "gemini":
		return newGeminiProvider(opts), nil
	case "openai", "":
		return newOpenAIProvider(opts), nil
	default:
		return nil, fmt.Errorf("不支持的AI提供商: %s", name)
	}
}

func mediaMIME(localPath string) string {
	if t := mime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "image/png"
}
