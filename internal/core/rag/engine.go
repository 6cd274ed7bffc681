// Package rag answers natural-language questions about one book, grounded
// only in that book's indexed chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/core"
)

// ErrProcessingFailed is the single error surfaced to callers. Retrieval and
// generation detail stays in the logs; it must not cross the API boundary.
var ErrProcessingFailed = errors.New("ai processing failed")

const systemPrompt = `You are a helpful AI tutor assisting a student with a textbook.
Use the following pieces of retrieved context to answer the question.
If the answer is not in the context, say you don't know. Keep it concise.`

const promptTemplate = `Context:
%s

Question: %s

Answer:`

type Engine struct {
	index core.VectorIndex
	llm   core.LLMProvider
	topK  int
	log   *zap.Logger
}

func NewEngine(index core.VectorIndex, llm core.LLMProvider, topK int, log *zap.Logger) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{index: index, llm: llm, topK: topK, log: log}
}

// Answer retrieves the top-k chunks scoped to bookID, renders the grounding
// prompt and returns the generator's output verbatim. An empty retrieval is
// not an error; the generator states it does not know.
func (e *Engine) Answer(ctx context.Context, bookID string, question string) (string, error) {
	chunks, err := e.index.Search(ctx, bookID, question, e.topK)
	if err != nil {
		e.log.Error("retrieval failed",
			zap.String("book_id", bookID), zap.Error(err))
		return "", ErrProcessingFailed
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	contextBlock := strings.Join(texts, "\n\n")

	userPrompt := fmt.Sprintf(promptTemplate, contextBlock, question)

	answer, err := e.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		e.log.Error("generation failed",
			zap.String("book_id", bookID), zap.Error(err))
		return "", ErrProcessingFailed
	}
	return answer, nil
}
