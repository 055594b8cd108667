package rag

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxContextChars is the default character budget for an assembled
// context block.
const DefaultMaxContextChars = 4000

// Fixed context layout. The tags are part of the product contract: downstream
// consumers parse [CONTEXT SOURCES] and [USER QUESTION] out of the block, so
// changing them is a breaking change.
const (
	contextHeader = "[SYSTEM CONTEXT RULES]\n" +
		"Use only the information provided below.\n" +
		"Cite evidence using [DOC:doc_id | CHUNK:chunk_id].\n\n" +
		"[CONTEXT SOURCES]\n"
	emptySources  = "No relevant sources found.\n\n"
	questionBlock = "\n[USER QUESTION]\n%s\n"
	sourceFooter  = "\n\n"
)

// Citation identifies one source included in an assembled context.
type Citation struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    int       `json:"chunk_id"`
	PageNumber *int      `json:"page_number,omitempty"`
	Similarity float32   `json:"similarity"`
}

// Assembly is the result of context assembly: the formatted block and one
// citation per source that made it in, in inclusion order.
type Assembly struct {
	Context   string     `json:"context"`
	Citations []Citation `json:"citations"`
}

// Assembler renders ranked candidates into a citation-tagged context block
// under a character budget.
//
// Assembly is deterministic: the same candidates and budget always produce
// byte-identical output. Candidates are consumed in their given order; a
// candidate that cannot fit even after summarization and truncation ends the
// source section (no skipping ahead to smaller chunks).
type Assembler struct {
	maxContextChars int
}

// NewAssembler creates an Assembler with the given character budget.
// Non-positive budgets fall back to DefaultMaxContextChars.
func NewAssembler(maxContextChars int) *Assembler {
	if maxContextChars < 1 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble builds the context block for a query from ranked candidates.
// maxChars overrides the assembler's default budget when positive.
//
// Each included source is wrapped in a header carrying its document, chunk
// and page identity. A source whose text exceeds the remaining budget is
// first reduced to its best-scoring sentences and, failing that,
// hard-truncated at a word boundary with a trailing ellipsis. With no candidates at all the
// block states that no relevant sources were found.
func (a *Assembler) Assemble(query string, candidates []Candidate, maxChars int) Assembly {
	if maxChars < 1 {
		maxChars = a.maxContextChars
	}

	if len(candidates) == 0 {
		return Assembly{
			Context:   contextHeader + emptySources + fmt.Sprintf(questionBlock, query),
			Citations: []Citation{},
		}
	}

	var b strings.Builder
	citations := make([]Citation, 0, len(candidates))
	current := 0

	b.WriteString(contextHeader)
	current += len(contextHeader)

	for i, cand := range candidates {
		pageTag := ""
		if cand.PageNumber != nil {
			pageTag = fmt.Sprintf(" | PAGE: %d", *cand.PageNumber)
		}
		sourceHeader := fmt.Sprintf("--- SOURCE %d ---\n[DOC: %s | CHUNK: %d%s]\n\n",
			i+1, cand.DocumentID, cand.ChunkID, pageTag)

		available := maxChars - current - len(sourceHeader) - len(sourceFooter)
		if available <= 0 {
			break
		}

		text := cand.Text
		if len(text) > available {
			text = ExtractTopSentences(text, available)
			if len(text) > available {
				text = TruncateAtWord(cand.Text, available)
			}
		}

		b.WriteString(sourceHeader)
		b.WriteString(text)
		b.WriteString(sourceFooter)
		current += len(sourceHeader) + len(text) + len(sourceFooter)

		citations = append(citations, Citation{
			DocumentID: cand.DocumentID,
			ChunkID:    cand.ChunkID,
			PageNumber: cand.PageNumber,
			Similarity: cand.Similarity,
		})

		if current >= maxChars {
			break
		}
	}

	b.WriteString(fmt.Sprintf(questionBlock, query))

	return Assembly{Context: b.String(), Citations: citations}
}
