package repository

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"Canvas-Auto-Quiz-Backend/internal/model"
)

// AttemptRepository 把每次运行的题目模型、最终答案和提交响应
// 存到 results/<runID>/ 下，仅作审计与预览，不参与后续运行。
type AttemptRepository struct {
	baseDir string
	mu      sync.Mutex
}

func NewAttemptRepository(baseDir string) (*AttemptRepository, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建结果目录 '%s' 失败: %w", baseDir, err)
	}
	log.Printf("[Attempt] 结果仓库已初始化，目录: '%s'", baseDir)
	return &AttemptRepository{baseDir: baseDir}, nil
}

func (r *AttemptRepository) SaveQuestions(runID string, questions []*model.Question) error {
	return r.writeJSON(runID, "questions.json", questions)
}

func (r *AttemptRepository) SaveAnswers(runID string, answers model.AnswerMap) error {
	return r.writeJSON(runID, "answers.json", answers)
}

// SaveResponse 提交响应按原始字节落盘，不做任何解析。
func (r *AttemptRepository) SaveResponse(runID string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.runDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "response.html")
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("写入提交响应失败: %w", err)
	}
	log.Printf("[Attempt] 提交响应已保存: '%s' (%d 字节)。", path, len(body))
	return nil
}

func (r *AttemptRepository) writeJSON(runID, name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.runDir(runID)
	if err != nil {
		return err
	}
	byteValue, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, byteValue, 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	log.Printf("[Attempt] 已保存 '%s'。", path)
	return nil
}

func (r *AttemptRepository) runDir(runID string) (string, error) {
	dir := filepath.Join(r.baseDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建运行目录 '%s' 失败: %w", dir, err)
	}
	return dir, nil
}
