package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// rePageMarker 解析器注入的页标记行
var rePageMarker = regexp.MustCompile(`--- \[PAGE (\d+)\] ---`)

var reHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// SplitParents 将整篇页标文本粗切为父块：按 Markdown 标题分节并记录标题路径，
// 超长小节再按字符数硬切。
func SplitParents(content, source string, maxSize int) []ParentDocument {
	if maxSize <= 0 {
		maxSize = 2000
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	type section struct {
		headerPath string
		text       string
	}

	var sections []section
	var current strings.Builder
	headerStack := make([]string, 0, 6)
	currentPath := ""

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			sections = append(sections, section{headerPath: currentPath, text: text})
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if m := reHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			level := len(m[1])
			if level <= len(headerStack) {
				headerStack = headerStack[:level-1]
			}
			headerStack = append(headerStack, strings.TrimSpace(m[2]))
			currentPath = strings.Join(headerStack, " > ")
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	var parents []ParentDocument
	for _, sec := range sections {
		for _, text := range hardSplit(sec.text, maxSize) {
			parents = append(parents, ParentDocument{
				Content: text,
				Metadata: DocumentMetadata{
					Source:     source,
					HeaderPath: sec.headerPath,
				},
			})
		}
	}
	return parents
}

// hardSplit 按字符数硬切超长文本
func hardSplit(text string, maxSize int) []string {
	if utf8.RuneCountInString(text) <= maxSize {
		return []string{text}
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += maxSize {
		end := start + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// ChildSlice 子块切片及其在父块内的字节偏移
type ChildSlice struct {
	Text  string
	Start int
}

// SplitChildren 将父块文本按固定窗口 + 重叠切为子块。
// 900 字符在 400/50 配置下产出 3 个子块。
func SplitChildren(text string, size, overlap int) []string {
	slices := ChildSlices(text, size, overlap)
	out := make([]string, len(slices))
	for i, s := range slices {
		out[i] = s.Text
	}
	return out
}

// ChildSlices 同 SplitChildren，附带字节偏移（用于回查页标记）。
func ChildSlices(text string, size, overlap int) []ChildSlice {
	if size <= 0 {
		size = 400
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 8
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var out []ChildSlice
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, ChildSlice{
			Text:  string(runes[start:end]),
			Start: len(string(runes[:start])),
		})
		if end >= len(runes) {
			break
		}
	}
	return out
}

// PageLabelAt 返回 offset（字节）之前最近的页标记编号，没有则返回空串。
func PageLabelAt(text string, offset int) string {
	matches := rePageMarker.FindAllStringSubmatchIndex(text, -1)
	label := ""
	for _, m := range matches {
		if m[0] > offset {
			break
		}
		label = text[m[2]:m[3]]
	}
	return label
}

// StripPageMarkers 去掉文本中的页标记行（展示用）
func StripPageMarkers(text string) string {
	text = rePageMarker.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
