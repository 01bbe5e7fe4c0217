package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog"
)

// DefaultEncoding is used for every known model family and as the fallback
// for unknown model names.
const DefaultEncoding = "cl100k_base"

type encodingLoader func(name string) (*tiktoken.Tiktoken, error)

var offlineOnce sync.Once

// getEncoding reads BPE ranks embedded in the binary so exact mode works
// without network access.
func getEncoding(name string) (*tiktoken.Tiktoken, error) {
	offlineOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	return tiktoken.GetEncoding(name)
}

// Budgeter counts and truncates text by tokens.
// It runs in exact mode (tiktoken) until the encoding fails to load once,
// after which it stays in heuristic mode for the rest of the process.
type Budgeter struct {
	mu       sync.Mutex
	load     encodingLoader
	encoders map[string]*tiktoken.Tiktoken
	broken   bool
	warned   map[string]struct{}
	logger   zerolog.Logger
}

type Option func(*Budgeter)

// WithLogger sets where fallback warnings go. Budgeter calls carry no
// context, so the logger is fixed at construction. The default discards.
func WithLogger(l *zerolog.Logger) Option {
	return func(b *Budgeter) {
		if l != nil {
			b.logger = *l
		}
	}
}

func New(opts ...Option) *Budgeter {
	return newWithLoader(getEncoding, opts...)
}

// NewHeuristic returns a budgeter that never touches tiktoken.
func NewHeuristic(opts ...Option) *Budgeter {
	b := newWithLoader(nil, opts...)
	b.broken = true
	return b
}

func newWithLoader(load encodingLoader, opts ...Option) *Budgeter {
	b := &Budgeter{
		load:     load,
		encoders: make(map[string]*tiktoken.Tiktoken),
		warned:   make(map[string]struct{}),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Exact reports whether the budgeter still uses a real tokenizer.
func (b *Budgeter) Exact() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.broken
}

func (b *Budgeter) encoder(model string) *tiktoken.Tiktoken {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, known := EncodingFor(model)
	if !known {
		if _, seen := b.warned[model]; !seen {
			b.warned[model] = struct{}{}
			b.logger.Warn().Str("model", model).Str("encoding", name).Msg("unknown model, using fallback encoding")
		}
	}

	if b.broken {
		return nil
	}
	if enc, ok := b.encoders[name]; ok {
		return enc
	}

	enc, err := b.load(name)
	if err != nil || enc == nil {
		b.broken = true
		b.logger.Warn().Err(err).Str("encoding", name).Msg("tokenizer unavailable, switching to heuristic token counts")
		return nil
	}
	b.encoders[name] = enc
	return enc
}

// Count returns the number of tokens in text under model's encoding.
func (b *Budgeter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	enc := b.encoder(model)
	if enc == nil {
		return heuristicCount(text)
	}
	return len(enc.EncodeOrdinary(text))
}

// Truncate returns the longest prefix of text it can find that fits into
// maxTokens. Text that already fits is returned unchanged.
func (b *Budgeter) Truncate(text string, maxTokens int, model string) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if b.Count(text, model) <= maxTokens {
		return text
	}

	enc := b.encoder(model)
	if enc == nil {
		return heuristicTruncate(text, maxTokens)
	}

	toks := enc.EncodeOrdinary(text)
	for n := maxTokens; n > 0; n-- {
		out := trimInvalidSuffix(enc.Decode(toks[:n]))
		if len(enc.EncodeOrdinary(out)) <= maxTokens {
			return out
		}
	}
	return ""
}

// TruncateFront keeps the tail of text instead of the head.
func (b *Budgeter) TruncateFront(text string, maxTokens int, model string) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if b.Count(text, model) <= maxTokens {
		return text
	}

	enc := b.encoder(model)
	if enc == nil {
		return heuristicTruncateFront(text, maxTokens)
	}

	toks := enc.EncodeOrdinary(text)
	for n := maxTokens; n > 0; n-- {
		out := trimInvalidPrefix(enc.Decode(toks[len(toks)-n:]))
		if len(enc.EncodeOrdinary(out)) <= maxTokens {
			return out
		}
	}
	return ""
}

// A token slice may end in the middle of a multi-byte rune.
func trimInvalidSuffix(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func trimInvalidPrefix(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[1:]
	}
	return s
}

var (
	defaultOnce     sync.Once
	defaultBudgeter *Budgeter
)

// Default returns the process-wide budgeter.
func Default() *Budgeter {
	defaultOnce.Do(func() {
		defaultBudgeter = New()
	})
	return defaultBudgeter
}

func Count(text, model string) int {
	return Default().Count(text, model)
}

func Truncate(text string, maxTokens int, model string) string {
	return Default().Truncate(text, maxTokens, model)
}
