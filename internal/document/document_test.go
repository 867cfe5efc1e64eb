package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		sentences []string
	}{
		{"empty", "", nil},
		{"single terminated", "Hello world.", []string{"Hello world."}},
		{"two sentences", "Hello world. How are you?", []string{"Hello world.", "How are you?"}},
		{"newline separated", "First one.\nSecond one!", []string{"First one.", "Second one!"}},
		{"trailing open sentence", "Done here. still typing", []string{"Done here.", "still typing"}},
		{"no terminator at all", "one two three", []string{"one two three"}},
		{"collapsed whitespace", "a   b.\n\n  c  d!", []string{"a b.", "c d!"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Parse(tc.content)
			require.Equal(t, len(tc.sentences), d.Len())
			for i, want := range tc.sentences {
				assert.Equal(t, want, d.Sentences[i].String())
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	// Well-formed content survives a parse/serialize cycle unchanged.
	for _, content := range []string{
		"Hello world.",
		"First one.\nSecond one!\nThird?",
		"Done here.\nstill typing",
		"one two three",
	} {
		assert.Equal(t, content, Parse(content).Serialize())
	}
}

func TestWordCount(t *testing.T) {
	d := Parse("a b c. d")
	assert.Equal(t, 3, d.WordCount(0))
	assert.Equal(t, 1, d.WordCount(1))
	assert.Equal(t, -1, d.WordCount(2))
	assert.Equal(t, -1, d.WordCount(-1))
}

func TestEnsureSentence(t *testing.T) {
	t.Run("empty document index zero", func(t *testing.T) {
		d := Parse("")
		require.NoError(t, d.EnsureSentence(0))
		assert.Equal(t, 1, d.Len())
	})

	t.Run("existing index is a no-op", func(t *testing.T) {
		d := Parse("a b.")
		require.NoError(t, d.EnsureSentence(0))
		assert.Equal(t, 1, d.Len())
	})

	t.Run("append after terminated final sentence", func(t *testing.T) {
		d := Parse("a b.")
		require.NoError(t, d.EnsureSentence(1))
		assert.Equal(t, 2, d.Len())
	})

	t.Run("append refused while final sentence open", func(t *testing.T) {
		d := Parse("a b")
		assert.ErrorIs(t, d.EnsureSentence(1), ErrOpenSentence)
	})

	t.Run("beyond append slot", func(t *testing.T) {
		d := Parse("a b.")
		assert.ErrorIs(t, d.EnsureSentence(5), ErrSentenceIndex)
		assert.ErrorIs(t, d.EnsureSentence(-1), ErrSentenceIndex)
	})
}

func TestInsertWordsPlain(t *testing.T) {
	d := Parse("one three.")
	idx, err := d.InsertWords(0, 1, "two")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "one two three.", d.Serialize())
}

func TestInsertWordsAppendAtTail(t *testing.T) {
	d := Parse("one two")
	idx, err := d.InsertWords(0, 2, "three four")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "one two three four", d.Serialize())
}

func TestInsertWordsIndexErrors(t *testing.T) {
	d := Parse("one two.")
	_, err := d.InsertWords(3, 0, "x")
	assert.ErrorIs(t, err, ErrSentenceIndex)
	_, err = d.InsertWords(0, 5, "x")
	assert.ErrorIs(t, err, ErrWordIndex)
}

func TestInsertWordsSplitsOpenSentence(t *testing.T) {
	// A delimiter token splits the sentence; the displaced tail follows the
	// continuation words.
	d := Parse("one two three")
	idx, err := d.InsertWords(0, 1, "big. shiny")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "one big.\nshiny two three", d.Serialize())
}

func TestInsertWordsSplitMovesTerminator(t *testing.T) {
	// The displaced tail keeps the terminator the sentence had before the
	// split.
	d := Parse("alpha beta gamma.")
	idx, err := d.InsertWords(0, 1, "x!")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "alpha x!\nbeta gamma.", d.Serialize())
}

func TestInsertWordsInterposesContinuation(t *testing.T) {
	// When the displaced tail is itself terminated, the remaining tokens land
	// in a fresh sentence between the split halves.
	d := Parse("alpha beta gamma.")
	idx, err := d.InsertWords(0, 1, "x. y")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "alpha x.\ny\nbeta gamma.", d.Serialize())
}

func TestInsertWordsMidTokenSplit(t *testing.T) {
	// Text after the delimiter inside one token starts the next sentence.
	d := Parse("a b")
	idx, err := d.InsertWords(0, 2, "c.d")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "a b c.\nd", d.Serialize())
}

func TestInsertWordsTrailingDelimiterAdvances(t *testing.T) {
	// Ending on a delimiter leaves the caller positioned on the next
	// (possibly empty) sentence.
	d := Parse("a b")
	idx, err := d.InsertWords(0, 2, "c.")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "a b c.", d.Serialize())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 0, d.WordCount(1))
}

func TestInsertWordsSplitAtHead(t *testing.T) {
	d := Parse("a b c")
	idx, err := d.InsertWords(0, 0, "x.")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "x.\na b c", d.Serialize())
}

func TestInsertWordsBareDelimiter(t *testing.T) {
	// A lone delimiter terminates an empty prefix; every word is displaced
	// and the empty sentence disappears on serialisation.
	d := Parse("a b c")
	_, err := d.InsertWords(0, 0, ".")
	require.NoError(t, err)
	assert.Equal(t, "a b c", d.Serialize())
}

func TestInsertWordsPreservesWordOrder(t *testing.T) {
	// Whatever splitting occurs, the flattened word sequence equals the old
	// sequence with the inserted tokens spliced in at the target position.
	tests := []struct {
		name     string
		content  string
		sentence int
		word     int
		text     string
	}{
		{"plain middle", "p q r. s t", 0, 2, "x y z"},
		{"delimiter middle", "p q r. s t", 0, 2, "x y! z"},
		{"mid token", "p q r", 0, 1, "x.y z"},
		{"multiple splits", "p q r.", 0, 0, "a. b! c"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Parse(tc.content)
			before := d.AllWords()
			inserted := strings.Fields(strings.Map(func(r rune) rune {
				if IsDelimiter(byte(r)) {
					return ' '
				}
				return r
			}, tc.text))

			// Flatten the target position across sentences.
			at := tc.word
			for i := 0; i < tc.sentence; i++ {
				at += d.WordCount(i)
			}

			_, err := d.InsertWords(tc.sentence, tc.word, tc.text)
			require.NoError(t, err)

			var want []string
			want = append(want, before[:at]...)
			want = append(want, inserted...)
			want = append(want, before[at:]...)
			assert.Equal(t, want, d.AllWords())
		})
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Stats
	}{
		{"empty", "", Stats{}},
		{"two sentences", "Hello world. Bye!", Stats{Chars: 17, Words: 3, Sentences: 2}},
		{"open sentence counts once", "one two three", Stats{Chars: 13, Words: 3, Sentences: 1}},
		{"trailing open adds nothing", "Done.\nmore", Stats{Chars: 10, Words: 2, Sentences: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeStats(tc.content))
		})
	}
}
