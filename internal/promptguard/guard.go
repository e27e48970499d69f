// Package promptguard defends downstream embedding/chat prompts that
// consume transform output against prompt injection carried in scanned
// document content: weighted pattern scoring, chunk-delimiter escaping, and
// explicit content wrapping.
package promptguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunk delimiters mark document-chunk boundaries so injected text cannot
// pass itself off as control tokens.
const (
	ChunkDelimiterStart = "<|doc_start|>"
	ChunkDelimiterEnd   = "<|doc_end|>"
)

// DefaultScoreThreshold is the minimum cumulative pattern weight needed to
// flag input as a probable injection attempt. Individually low-weight
// patterns (a lone "p.s.:") must co-occur to reach it, which keeps common,
// innocuous words like "summarize" or "instructions" from tripping a flag
// on their own.
const DefaultScoreThreshold = 3.0

type pattern struct {
	re          *regexp.Regexp
	weight      float64
	description string
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)\b(ignore|forget|disregard)\b.{0,30}\b(previous|above|all|instructions?|context|rules?|prompt)\b`), 3, "instruction override"},
	{regexp.MustCompile(`(?i)\bsystem prompt\b`), 3, "system prompt probe"},
	{regexp.MustCompile(`(?i)\b(override|replace|rewrite)\b.{0,20}\b(instructions?|rules?|prompt|behavior)\b`), 3, "instruction replacement"},
	{regexp.MustCompile(`(?i)\bdo not\b.{0,30}\b(follow|obey|listen|use)\b`), 2, "instruction negation"},
	{regexp.MustCompile(`(?i)\b(this is fake|that was wrong|correction|addendum)\b`), 2, "context manipulation"},
	{regexp.MustCompile(`(?i)\bnew (task|role|instructions?)\b`), 2, "task switching"},
	{regexp.MustCompile(`(?i)\b(ps:|p\.s\.:?|postscript)\b`), 1, "postscript injection"},
	{regexp.MustCompile(`(?i)\binstead of\b.{0,20}\b(answering|following|using)\b`), 2, "alternative instruction"},
}

// Guard scores scanned document text for prompt injection and prepares it
// for safe inclusion in a downstream prompt.
type Guard struct {
	threshold float64
}

// New builds a Guard with the given score threshold. A non-positive
// threshold falls back to DefaultScoreThreshold.
func New(threshold float64) *Guard {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	return &Guard{threshold: threshold}
}

// ScoreResult is the outcome of scoring one piece of text against the
// injection pattern set.
type ScoreResult struct {
	Score   float64
	Matched []string
}

// Flagged reports whether the cumulative score meets the guard's threshold.
func (s ScoreResult) Flagged(threshold float64) bool { return s.Score >= threshold }

// Score scans input against every known injection pattern, returning the
// cumulative weight and the description of each pattern that matched.
func Score(input string) ScoreResult {
	var res ScoreResult
	for _, p := range patterns {
		if p.re.MatchString(input) {
			res.Score += p.weight
			res.Matched = append(res.Matched, p.description)
		}
	}
	return res
}

// Detect returns a human-readable reason when input's score meets the
// guard's threshold, or ("", false) for benign input.
func (g *Guard) Detect(input string) (string, bool) {
	res := Score(input)
	if !res.Flagged(g.threshold) {
		return "", false
	}
	return fmt.Sprintf("injection patterns detected (score %.0f/%.0f): %s", res.Score, g.threshold, strings.Join(res.Matched, ", ")), true
}

// Sanitize escapes chunk delimiters and common Markdown fence/rule tokens in
// scanned content before it is embedded in a downstream prompt, so injected
// text cannot forge a chunk boundary or a fenced-code escape.
func Sanitize(input string) string {
	replacer := strings.NewReplacer(
		ChunkDelimiterStart, `\`+ChunkDelimiterStart,
		ChunkDelimiterEnd, `\`+ChunkDelimiterEnd,
		"---", `\-\-\-`,
		"```", "\\`\\`\\`",
	)
	var b strings.Builder
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		b.WriteString(replacer.Replace(line))
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n \t")
}

// WrapChunk formats a sanitized document chunk with explicit delimiters so
// a downstream prompt can unambiguously tell document content apart from
// instructions, mirroring format_document_chunk in the system this
// substrate's chunking pipeline was modeled on.
func WrapChunk(index int, title string, content string) string {
	return fmt.Sprintf("%s\n[Chunk %d] - %s\nContent:\n%s\n%s",
		ChunkDelimiterStart, index, escapeTitle(title), Sanitize(content), ChunkDelimiterEnd)
}

func escapeTitle(title string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return replacer.Replace(title)
}
