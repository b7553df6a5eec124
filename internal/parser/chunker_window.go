package parser

import (
	"strings"

	"smarthire-ats/internal/types"
)

// 默认分块参数
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// WindowChunker 按空白分词后以固定大小、带重叠的词窗口切分文本
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker 创建分块器，要求 0 <= overlap < size
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, types.NewConfigurationError("chunk_size", "必须大于0，当前为 %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, types.NewConfigurationError("chunk_overlap", "必须满足 0 <= overlap < chunk_size，当前为 %d/%d", overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Size 窗口大小
func (c *WindowChunker) Size() int { return c.size }

// Overlap 重叠词数
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk 切分文本，空文本返回空切片。
// 窗口起点为 0, step, 2*step... 中小于词数的每个位置（step = size-overlap），
// 末尾窗口可能不足 size，也可能完全落在前一个窗口内。
func (c *WindowChunker) Chunk(text string) []types.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []types.Chunk{}
	}

	step := c.size - c.overlap
	chunks := make([]types.Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, types.Chunk{
			Text:      strings.Join(words[start:end], " "),
			ChunkID:   len(chunks),
			StartWord: start,
			EndWord:   end,
			WordCount: end - start,
		})
	}
	return chunks
}
