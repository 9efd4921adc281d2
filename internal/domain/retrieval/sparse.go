package retrieval

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25Encoder 本地稀疏编码器：分词、词频统计后将词项哈希到固定维度空间，
// 权重做 BM25 风格的词频饱和。与语料统计无关，编码结果确定。
type BM25Encoder struct {
	k1 float64
	b  float64
	// avgLen 词数归一化基准
	avgLen float64
}

// NewBM25Encoder 创建稀疏编码器
func NewBM25Encoder() *BM25Encoder {
	return &BM25Encoder{
		k1:     1.2,
		b:      0.75,
		avgLen: 256,
	}
}

// Encode 生成稀疏向量。相同文本始终产出相同的 indices/values。
func (e *BM25Encoder) Encode(text string) SparseVector {
	terms := tokenize(text)
	if len(terms) == 0 {
		return SparseVector{}
	}

	tf := make(map[uint32]float64, len(terms))
	for _, term := range terms {
		tf[termIndex(term)]++
	}

	docLen := float64(len(terms))
	norm := e.k1 * (1 - e.b + e.b*docLen/e.avgLen)

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		f := tf[idx]
		values[i] = float32(f * (e.k1 + 1) / (f + norm))
	}

	return SparseVector{Indices: indices, Values: values}
}

// tokenize 小写化并按非字母数字切分；过滤单字符词
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 || isCJK(f) {
			terms = append(terms, f)
		}
	}
	return terms
}

func isCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// termIndex 词项 → 稀疏维度
func termIndex(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	idx := h.Sum32()
	if idx == math.MaxUint32 {
		idx--
	}
	return idx
}
