package rag

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/localrag/pkg/tokens"
)

// Tokenizer is the subset of tokens.Budgeter the chunker needs.
type Tokenizer interface {
	Count(text, model string) int
	Truncate(text string, maxTokens int, model string) string
}

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Model        string
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Model:        "llama3",
	}
}

// Chunk is a token-bounded slice of a larger text.
// Text is always the exact substring source[Start:End] (byte offsets).
type Chunk struct {
	Text     string
	Tokens   int
	Index    int
	Start    int
	End      int
	Page     int
	SubChunk int
	Sections []string
}

func (c Chunk) Metadata() map[string]any {
	md := map[string]any{
		"tokens":           c.Tokens,
		"chunk_index":      c.Index,
		"chunk_start_char": c.Start,
		"chunk_end_char":   c.End,
	}
	if c.Page > 0 {
		md["page"] = c.Page
	}
	if c.SubChunk > 0 {
		md["sub_chunk"] = c.SubChunk
	}
	if len(c.Sections) > 0 {
		md["sections"] = append([]string(nil), c.Sections...)
	}
	return md
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceBreak  = regexp.MustCompile(`([.!?])\s+|([。！？])\s*`)
	pageMarker     = regexp.MustCompile(`\bPage (\d+):`)
	headerLine     = regexp.MustCompile(`(?m)^(?:#{1,6}[ \t]+(\S[^\n]*)|\d+\.[ \t]+(\p{Lu}[^\n]*))$`)
)

const (
	minPageMarkers = 2
	minHeaderLines = 3
)

type span struct {
	start, end int
}

type Chunker struct {
	cfg     ChunkerConfig
	tk      Tokenizer
	modelFn func() string
}

func NewChunker(cfg ChunkerConfig, tk Tokenizer) *Chunker {
	def := DefaultChunkerConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if tk == nil {
		tk = tokens.Default()
	}
	return &Chunker{cfg: cfg, tk: tk}
}

func (c *Chunker) Config() ChunkerConfig {
	cfg := c.cfg
	cfg.Model = c.model()
	return cfg
}

// FollowModel makes token counts use whatever model fn reports at call time
// instead of the fixed ChunkerConfig.Model.
func (c *Chunker) FollowModel(fn func() string) *Chunker {
	c.modelFn = fn
	return c
}

func (c *Chunker) model() string {
	if c.modelFn != nil {
		if m := c.modelFn(); m != "" {
			return m
		}
	}
	return c.cfg.Model
}

func (c *Chunker) count(s string) int {
	return c.tk.Count(s, c.model())
}

// Split chunks text. Blank text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	whole := trimSpan(text, span{0, len(text)})
	if whole.start >= whole.end {
		return nil
	}

	if c.count(text[whole.start:whole.end]) <= c.cfg.ChunkSize {
		return c.finish(text, []Chunk{{Start: whole.start, End: whole.end}})
	}

	switch {
	case len(pageMarker.FindAllStringIndex(text, -1)) >= minPageMarkers:
		return c.finish(text, c.splitPages(text))
	case len(headerLine.FindAllStringIndex(text, -1)) >= minHeaderLines:
		return c.finish(text, c.splitSections(text))
	default:
		return c.finish(text, toChunks(c.accumulate(text, c.units(text, whole))))
	}
}

// HasStructure reports whether Split would use the page or section strategy
// for a text larger than one chunk.
func HasStructure(text string) bool {
	return len(pageMarker.FindAllStringIndex(text, -1)) >= minPageMarkers ||
		len(headerLine.FindAllStringIndex(text, -1)) >= minHeaderLines
}

func (c *Chunker) finish(text string, chunks []Chunk) []Chunk {
	titles := headerTitles(text)
	out := chunks[:0]
	for _, ch := range chunks {
		if ch.Start >= ch.End {
			continue
		}
		ch.Text = text[ch.Start:ch.End]
		ch.Tokens = c.count(ch.Text)
		ch.Index = len(out)
		for _, h := range titles {
			if h.pos >= ch.Start && h.pos < ch.End {
				ch.Sections = append(ch.Sections, h.title)
			}
		}
		out = append(out, ch)
	}
	return out
}

func (c *Chunker) splitPages(text string) []Chunk {
	locs := pageMarker.FindAllStringSubmatchIndex(text, -1)
	var chunks []Chunk

	if pre := trimSpan(text, span{0, locs[0][0]}); pre.start < pre.end {
		chunks = append(chunks, toChunks(c.recursive(text, pre))...)
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		page := atoi(text[loc[2]:loc[3]])
		sp := trimSpan(text, span{loc[0], end})
		if sp.start >= sp.end {
			continue
		}

		if c.count(text[sp.start:sp.end]) <= c.cfg.ChunkSize {
			chunks = append(chunks, Chunk{Start: sp.start, End: sp.end, Page: page})
			continue
		}
		for j, piece := range c.recursive(text, sp) {
			chunks = append(chunks, Chunk{Start: piece.start, End: piece.end, Page: page, SubChunk: j + 1})
		}
	}
	return chunks
}

func (c *Chunker) splitSections(text string) []Chunk {
	locs := headerLine.FindAllStringIndex(text, -1)
	bounds := []int{0}
	for _, loc := range locs {
		if loc[0] > 0 {
			bounds = append(bounds, loc[0])
		}
	}
	bounds = append(bounds, len(text))

	var units []span
	for i := 0; i+1 < len(bounds); i++ {
		sec := trimSpan(text, span{bounds[i], bounds[i+1]})
		if sec.start >= sec.end {
			continue
		}
		if c.count(text[sec.start:sec.end]) <= c.cfg.ChunkSize {
			units = append(units, sec)
			continue
		}
		units = append(units, c.units(text, sec)...)
	}
	return toChunks(c.accumulate(text, units))
}

// recursive splits one span by paragraphs, then sentences, then token windows.
func (c *Chunker) recursive(text string, sp span) []span {
	if c.count(text[sp.start:sp.end]) <= c.cfg.ChunkSize {
		return []span{sp}
	}
	return c.accumulate(text, c.units(text, sp))
}

// units breaks a span into pieces that each fit into one chunk, except a
// single rune that alone exceeds the chunk size.
func (c *Chunker) units(text string, sp span) []span {
	var out []span
	for _, para := range splitSpan(text, sp, paragraphBreak) {
		if c.count(text[para.start:para.end]) <= c.cfg.ChunkSize {
			out = append(out, para)
			continue
		}
		for _, sent := range splitSpan(text, para, sentenceBreak) {
			if c.count(text[sent.start:sent.end]) <= c.cfg.ChunkSize {
				out = append(out, sent)
				continue
			}
			out = append(out, c.windows(text, sent)...)
		}
	}
	return out
}

// windows hard-splits a span into token windows of ChunkSize that step back
// by about ChunkOverlap tokens.
func (c *Chunker) windows(text string, sp span) []span {
	var out []span
	pos := sp.start
	for pos < sp.end {
		rest := text[pos:sp.end]
		piece := c.tk.Truncate(rest, c.cfg.ChunkSize, c.model())
		if piece == "" {
			_, size := utf8.DecodeRuneInString(rest)
			piece = rest[:size]
		}
		end := pos + len(piece)
		out = append(out, span{pos, end})
		if end >= sp.end {
			break
		}

		next := end
		if c.cfg.ChunkOverlap > 0 {
			back := int(float64(c.cfg.ChunkOverlap) * charsPerToken(piece, c.count(piece)))
			if cand := alignForward(text, end-back); cand > pos && cand < end {
				next = cand
			}
		}
		pos = next
	}
	return out
}

// accumulate packs units into chunk spans. On every flush the next buffer is
// seeded with the overlap suffix of the flushed one. When seed and unit do
// not fit together the unit is split into sentences so the seed can lead the
// first of them; a unit with no sentence break drops the seed.
func (c *Chunker) accumulate(text string, units []span) []span {
	var (
		out []span
		cur span
		has bool
		// cur holds only an overlap seed and is never emitted alone
		seedOnly bool
	)

	queue := units
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		if !has {
			cur, has = u, true
			continue
		}
		merged := span{cur.start, u.end}
		if u.start >= cur.start && c.fits(text, merged) {
			cur, seedOnly = merged, false
			continue
		}
		if seedOnly {
			cur, seedOnly = u, false
			continue
		}

		out = append(out, cur)
		seed := c.overlapStart(text, cur)
		cur = u
		if seed < 0 || seed >= u.start {
			continue
		}
		if c.fits(text, span{seed, u.end}) {
			cur = span{seed, u.end}
			continue
		}
		if parts := c.sentences(text, u); len(parts) > 1 {
			queue = append(parts, queue...)
			cur, seedOnly = span{seed, u.start}, true
		}
	}
	if has && !seedOnly {
		out = append(out, cur)
	}
	return out
}

func (c *Chunker) fits(text string, sp span) bool {
	return c.count(text[sp.start:sp.end]) <= c.cfg.ChunkSize
}

// sentences splits a unit at sentence breaks, windowing any sentence that is
// larger than a chunk.
func (c *Chunker) sentences(text string, u span) []span {
	var out []span
	for _, sent := range splitSpan(text, u, sentenceBreak) {
		if c.fits(text, sent) {
			out = append(out, sent)
			continue
		}
		out = append(out, c.windows(text, sent)...)
	}
	return out
}

// overlapStart returns the offset where the overlap seed for the next chunk
// begins inside sp, or -1 when there is none.
func (c *Chunker) overlapStart(text string, sp span) int {
	if c.cfg.ChunkOverlap <= 0 {
		return -1
	}
	seg := text[sp.start:sp.end]
	n := c.count(seg)
	if n == 0 {
		return -1
	}

	back := int(float64(c.cfg.ChunkOverlap) * charsPerToken(seg, n))
	if back > len(seg)/2 {
		back = len(seg) / 2
	}
	if back <= 0 {
		return -1
	}
	pos := alignForward(seg, len(seg)-back)
	rest := seg[pos:]

	if loc := paragraphBreak.FindStringIndex(rest); loc != nil && loc[1] < len(rest) {
		pos += loc[1]
	} else if loc := sentenceBreak.FindStringIndex(rest); loc != nil && loc[1] < len(rest) {
		pos += loc[1]
	}

	for pos < len(seg) {
		r, size := utf8.DecodeRuneInString(seg[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	if pos >= len(seg) {
		return -1
	}
	return sp.start + pos
}

// OptimalChunkSize suggests a chunk size that splits text into about
// targetChunks pieces, with 20% headroom and a floor of 100 tokens.
func OptimalChunkSize(tk Tokenizer, text, model string, targetChunks int) int {
	if targetChunks <= 0 {
		targetChunks = 10
	}
	size := int(float64(tk.Count(text, model)) / float64(targetChunks) * 1.2)
	if size < 100 {
		size = 100
	}
	return size
}

func toChunks(spans []span) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, Chunk{Start: sp.start, End: sp.end})
	}
	return chunks
}

// splitSpan cuts sp at every match of re. For sentence breaks the terminal
// punctuation stays with the preceding piece.
func splitSpan(text string, sp span, re *regexp.Regexp) []span {
	var out []span
	seg := text[sp.start:sp.end]
	from := 0
	for _, loc := range re.FindAllStringSubmatchIndex(seg, -1) {
		cut := loc[0]
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] >= 0 {
				cut = loc[g+1]
				break
			}
		}
		if piece := trimSpan(text, span{sp.start + from, sp.start + cut}); piece.start < piece.end {
			out = append(out, piece)
		}
		from = loc[1]
	}
	if piece := trimSpan(text, span{sp.start + from, sp.end}); piece.start < piece.end {
		out = append(out, piece)
	}
	return out
}

func trimSpan(text string, sp span) span {
	seg := text[sp.start:sp.end]
	left := len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
	right := len(strings.TrimRightFunc(seg, unicode.IsSpace))
	if left >= right {
		return span{sp.start, sp.start}
	}
	return span{sp.start + left, sp.start + right}
}

type header struct {
	pos   int
	title string
}

func headerTitles(text string) []header {
	var out []header
	for _, loc := range headerLine.FindAllStringSubmatchIndex(text, -1) {
		title := ""
		switch {
		case loc[2] >= 0:
			title = text[loc[2]:loc[3]]
		case loc[4] >= 0:
			title = text[loc[0]:loc[5]]
		}
		out = append(out, header{pos: loc[0], title: strings.TrimSpace(title)})
	}
	return out
}

func charsPerToken(s string, n int) float64 {
	if n <= 0 {
		return 4
	}
	return float64(len(s)) / float64(n)
}

func alignForward(s string, pos int) int {
	if pos < 0 {
		return 0
	}
	for pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos++
	}
	return pos
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
