package parser

import (
	"fmt"
	"strings"
	"testing"

	"smarthire-ats/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestNewWindowChunkerValidation(t *testing.T) {
	_, err := NewWindowChunker(10, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewWindowChunker(10, -1)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewWindowChunker(0, 0)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	c, err := NewWindowChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Equal(t, 512, c.Size())
	assert.Equal(t, 50, c.Overlap())
}

func TestWindowChunkerEmptyText(t *testing.T) {
	c, err := NewWindowChunker(5, 1)
	require.NoError(t, err)

	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestWindowChunkerWindows(t *testing.T) {
	c, err := NewWindowChunker(4, 1)
	require.NoError(t, err)

	chunks := c.Chunk(makeWords(10))
	require.Len(t, chunks, 4)

	assert.Equal(t, types.Chunk{Text: "w0 w1 w2 w3", ChunkID: 0, StartWord: 0, EndWord: 4, WordCount: 4}, chunks[0])
	assert.Equal(t, types.Chunk{Text: "w3 w4 w5 w6", ChunkID: 1, StartWord: 3, EndWord: 7, WordCount: 4}, chunks[1])
	assert.Equal(t, types.Chunk{Text: "w6 w7 w8 w9", ChunkID: 2, StartWord: 6, EndWord: 10, WordCount: 4}, chunks[2])
	assert.Equal(t, types.Chunk{Text: "w9", ChunkID: 3, StartWord: 9, EndWord: 10, WordCount: 1}, chunks[3],
		"起点 9 仍小于词数，保留只含重叠部分的尾窗口")
}

func TestWindowChunkerShortTail(t *testing.T) {
	c, err := NewWindowChunker(4, 0)
	require.NoError(t, err)

	chunks := c.Chunk(makeWords(6))
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[1].WordCount)
	assert.Equal(t, "w4 w5", chunks[1].Text)
}

func TestWindowChunkerShorterThanWindow(t *testing.T) {
	c, err := NewWindowChunker(512, 50)
	require.NoError(t, err)

	chunks := c.Chunk("5 years of experience with Python")
	require.Len(t, chunks, 1)
	assert.Equal(t, 6, chunks[0].WordCount)
	assert.Equal(t, "5 years of experience with Python", chunks[0].Text)
}

// 任意文本的窗口应连续、覆盖全部词，且 chunk_id 从0严格递增
func TestWindowChunkerCoverageProperty(t *testing.T) {
	params := []struct{ size, overlap int }{
		{1, 0}, {2, 1}, {3, 0}, {5, 2}, {7, 6}, {16, 3}, {512, 50},
	}
	for _, p := range params {
		c, err := NewWindowChunker(p.size, p.overlap)
		require.NoError(t, err)

		for n := 1; n <= 60; n++ {
			text := makeWords(n)
			chunks := c.Chunk(text)
			require.NotEmpty(t, chunks)
			step := p.size - p.overlap
			assert.Len(t, chunks, (n+step-1)/step, "每个小于词数的起点对应一个窗口")

			covered := make([]bool, n)
			for i, ch := range chunks {
				assert.Equal(t, i, ch.ChunkID)
				assert.Equal(t, ch.EndWord-ch.StartWord, ch.WordCount)
				assert.LessOrEqual(t, ch.WordCount, p.size)
				if i > 0 {
					assert.LessOrEqual(t, ch.StartWord, chunks[i-1].EndWord, "窗口之间不应有空隙")
					assert.Equal(t, p.size-p.overlap, ch.StartWord-chunks[i-1].StartWord)
				}
				for w := ch.StartWord; w < ch.EndWord; w++ {
					covered[w] = true
				}
			}
			assert.Equal(t, 0, chunks[0].StartWord)
			assert.Equal(t, n, chunks[len(chunks)-1].EndWord)
			assert.Greater(t, n, chunks[len(chunks)-1].StartWord)
			for w, ok := range covered {
				assert.True(t, ok, "size=%d overlap=%d n=%d 词 %d 未被覆盖", p.size, p.overlap, n, w)
			}

			// 确定性
			assert.Equal(t, chunks, c.Chunk(text))
		}
	}
}
