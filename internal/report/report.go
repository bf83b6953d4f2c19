// Package report 把回测产物落地成 JSON 结果包与权益曲线 HTML。
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alphasim/internal/backtest"
)

// Writer 把一次回测的全部产物写进 <root>/<runID>/ 目录。
type Writer struct {
	root string
}

func NewWriter(root string) (*Writer, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("report 输出目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Writer{root: root}, nil
}

// Write 输出 results.json 与每个 agent 的权益曲线 HTML，
// 返回 run 目录路径。
func (w *Writer) Write(b backtest.Bundle) (string, error) {
	dir := filepath.Join(w.root, b.Run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "results.json"), raw, 0o644); err != nil {
		return "", err
	}

	for _, res := range b.Results {
		html, err := renderEquityCurve(b.Run, res)
		if err != nil {
			return "", fmt.Errorf("render equity %s: %w", res.AgentID, err)
		}
		name := fmt.Sprintf("equity_%s.html", strings.ToLower(res.Personality))
		if err := os.WriteFile(filepath.Join(dir, name), html, 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}
