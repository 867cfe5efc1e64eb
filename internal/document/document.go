// Package document implements the sentence-structured text model: parsing,
// serialisation, and the multi-word insert operation with delimiter
// splitting.
//
// A document is an ordered sequence of sentences; a sentence is an ordered
// sequence of words plus one terminator from {'.', '!', '?', none}. Adjacent
// words are separated by one space, sentences by one newline. A sentence
// without a terminator is permitted only at the end of the document.
package document

import (
	"errors"
	"strings"
)

var (
	ErrSentenceIndex = errors.New("sentence index out of range")
	ErrWordIndex     = errors.New("word index out of range")
	ErrOpenSentence  = errors.New("previous sentence has no terminator")
)

// IsDelimiter reports whether c terminates a sentence.
func IsDelimiter(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

// Sentence is an ordered run of words plus at most one terminator.
// Delim is 0 when the sentence is unterminated.
type Sentence struct {
	Words []string
	Delim byte
}

// String renders the sentence as its words space-joined followed by the
// terminator if any.
func (s *Sentence) String() string {
	var b strings.Builder
	for i, w := range s.Words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if s.Delim != 0 {
		b.WriteByte(s.Delim)
	}
	return b.String()
}

// Document is an ordered sequence of sentences. Empty sentences may exist
// transiently as insertion targets; they are skipped on serialisation.
type Document struct {
	Sentences []*Sentence
}

// Parse walks the byte stream producing a sentence at every delimiter.
// Trailing content without a delimiter forms a final unterminated sentence.
func Parse(content string) *Document {
	d := &Document{}

	start := 0
	for i := 0; i < len(content); i++ {
		if !IsDelimiter(content[i]) {
			continue
		}

		d.Sentences = append(d.Sentences, &Sentence{
			Words: strings.Fields(content[start:i]),
			Delim: content[i],
		})

		start = i + 1
		for start < len(content) && isSpace(content[start]) {
			start++
		}
		i = start - 1
	}

	if trailing := strings.TrimSpace(content[min(start, len(content)):]); trailing != "" {
		d.Sentences = append(d.Sentences, &Sentence{Words: strings.Fields(trailing)})
	}

	return d
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Serialize renders the document: wordful sentences joined by a single
// newline. Empty sentences are dropped.
func (d *Document) Serialize() string {
	var parts []string
	for _, s := range d.Sentences {
		if len(s.Words) > 0 {
			parts = append(parts, s.String())
		}
	}
	return strings.Join(parts, "\n")
}

// Len returns the sentence count, including transiently empty sentences.
func (d *Document) Len() int {
	return len(d.Sentences)
}

// WordCount returns the word count of sentence i, or -1 when out of range.
func (d *Document) WordCount(i int) int {
	if i < 0 || i >= len(d.Sentences) {
		return -1
	}
	return len(d.Sentences[i].Words)
}

// EnsureSentence applies the append rule for a WRITE targeting index idx:
// an existing index is returned as is; idx == Len() materialises a fresh
// empty sentence, but only when the document is empty or the current final
// sentence carries a terminator (otherwise new tokens would belong to that
// open sentence).
func (d *Document) EnsureSentence(idx int) error {
	if idx < 0 {
		return ErrSentenceIndex
	}
	if idx < len(d.Sentences) {
		return nil
	}
	if idx > len(d.Sentences) {
		return ErrSentenceIndex
	}

	if n := len(d.Sentences); n > 0 && d.Sentences[n-1].Delim == 0 {
		return ErrOpenSentence
	}

	d.Sentences = append(d.Sentences, &Sentence{})
	return nil
}

// InsertWords tokenises text on whitespace and inserts the tokens into
// sentence sentenceIdx immediately before the word at wordIdx (wordIdx equal
// to the word count appends at the tail). A token containing a sentence
// delimiter splits the sentence: the delimiter terminates the current
// sentence, the words that previously followed the insertion point are
// displaced into a new sentence inserted right after it, and the displaced
// tail carries the original terminator of the edited sentence. When the
// displaced tail itself carries a terminator and further tokens remain,
// another empty sentence is interposed to receive the continuation. Text
// after the delimiter inside one token is reprocessed as a fresh token at the
// head of the continuation. Returns the index of the sentence holding the
// last inserted token.
func (d *Document) InsertWords(sentenceIdx, wordIdx int, text string) (int, error) {
	if sentenceIdx < 0 || sentenceIdx >= len(d.Sentences) {
		return sentenceIdx, ErrSentenceIndex
	}

	active := d.Sentences[sentenceIdx]
	if wordIdx < 0 || wordIdx > len(active.Words) {
		return sentenceIdx, ErrWordIndex
	}

	tokens := strings.Fields(text)
	cur := sentenceIdx
	pos := wordIdx // next insertion slot within active.Words

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		delimPos := -1
		for j := 0; j < len(token); j++ {
			if IsDelimiter(token[j]) {
				delimPos = j
				break
			}
		}

		if delimPos == -1 {
			active.Words = insertAt(active.Words, pos, token)
			pos++
			continue
		}

		delim := token[delimPos]
		prefix := token[:delimPos]
		suffix := token[delimPos+1:]

		if prefix != "" {
			active.Words = insertAt(active.Words, pos, prefix)
			pos++
		}

		// Detach the words that followed the insertion point; they migrate
		// into a new sentence carrying the terminator the edited sentence
		// had before the split.
		var displaced []string
		movedDelim := byte(0)
		if pos < len(active.Words) {
			displaced = append([]string(nil), active.Words[pos:]...)
			active.Words = active.Words[:pos]
			movedDelim = active.Delim
		}

		active.Delim = delim

		newSent := &Sentence{Words: displaced, Delim: movedDelim}
		d.insertAfter(cur, newSent)

		moreTokens := i < len(tokens)-1 || suffix != ""

		if len(displaced) > 0 && movedDelim != 0 && moreTokens {
			// The displaced tail is already terminated, so the continuation
			// cannot join it: interpose an empty sentence between the edited
			// sentence and the displaced tail.
			continuation := &Sentence{}
			d.insertAfter(cur, continuation)
			active = continuation
		} else {
			// Insertion continues at the head of the new sentence, ahead of
			// any displaced words.
			active = newSent
		}
		cur++
		pos = 0

		if suffix != "" {
			// Reprocess the text after the delimiter as a fresh token.
			tokens[i] = suffix
			i--
		}
	}

	return cur, nil
}

func (d *Document) insertAfter(idx int, s *Sentence) {
	d.Sentences = append(d.Sentences, nil)
	copy(d.Sentences[idx+2:], d.Sentences[idx+1:])
	d.Sentences[idx+1] = s
}

func insertAt(words []string, pos int, w string) []string {
	words = append(words, "")
	copy(words[pos+1:], words[pos:])
	words[pos] = w
	return words
}

// AllWords returns every word of the document in order, crossing sentence
// boundaries. Used by STREAM playback and by tests checking insertion
// preserves word order.
func (d *Document) AllWords() []string {
	var out []string
	for _, s := range d.Sentences {
		out = append(out, s.Words...)
	}
	return out
}
