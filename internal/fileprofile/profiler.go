// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fileprofile 对上传文件做本地画像：抽取文本预览与结构信息，
// 供 Planner 在规划阶段了解文件内容，避免把整个文件塞进提示词。
package fileprofile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"apexflow/pkg/log"
)

// previewLimit 单文件文本预览上限（字符）
const previewLimit = 2000

// Profile 单个文件的画像
type Profile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"` // pdf, text, unknown
	Pages     int    `json:"pages,omitempty"`
	Preview   string `json:"preview,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Profiler 文件画像器
type Profiler struct {
	logger *log.Logger
}

// NewProfiler 创建画像器
func NewProfiler(logger *log.Logger) *Profiler {
	return &Profiler{logger: logger}
}

// ProfileAll 逐个画像；单文件失败只记录在该文件的画像里，不影响其余文件
func (p *Profiler) ProfileAll(paths []string) map[string]any {
	profiles := make(map[string]any, len(paths))
	for _, path := range paths {
		profile := p.profileOne(path)
		profiles[profile.Name] = profile
	}
	return profiles
}

func (p *Profiler) profileOne(path string) Profile {
	profile := Profile{Name: filepath.Base(path)}

	info, err := os.Stat(path)
	if err != nil {
		profile.Error = err.Error()
		return profile
	}
	profile.SizeBytes = info.Size()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		profile.Kind = "pdf"
		pages, preview, err := extractPDF(path)
		if err != nil {
			p.logger.Warn("PDF 抽取失败", "file", profile.Name, "error", err.Error())
			profile.Error = err.Error()
			return profile
		}
		profile.Pages = pages
		profile.Preview = truncate(preview, previewLimit)
	case ".txt", ".md", ".csv", ".json", ".yaml", ".yml", ".log":
		profile.Kind = "text"
		data, err := os.ReadFile(path)
		if err != nil {
			profile.Error = err.Error()
			return profile
		}
		profile.Preview = truncate(string(data), previewLimit)
	default:
		profile.Kind = "unknown"
	}
	return profile
}

// extractPDF 抽取 PDF 文本；只取到预览上限即停
func extractPDF(path string) (int, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return 0, "", fmt.Errorf("读取 PDF 失败: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return 0, "", err
	}

	var b strings.Builder
	for i := 1; i <= numPages && b.Len() < previewLimit; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return numPages, b.String(), nil
}

// truncate 按字节上限截断，但只在 rune 边界切：
// 预览会回灌给模型，截出半个多字节字符会产生非法 UTF-8
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
