package assembler

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tiktoken encodings are model-family specific; cl100k_base covers the
// GPT-4/GPT-3.5 family and is a reasonable universal estimate for
// non-OpenAI models too, matching spec.md §4.G's "tokenizer when
// available, else len(text)//4" rule.
const defaultEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// EstimateTokens counts tokens in text using tiktoken's cl100k_base
// encoding, falling back to len(text)/4 if the encoding couldn't be
// loaded (e.g. no network access to fetch its vocabulary file offline).
func EstimateTokens(text string) int {
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}
