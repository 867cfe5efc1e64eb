package document

import "strings"

// Stats summarises a serialised document for metadata bookkeeping.
type Stats struct {
	Chars     int
	Words     int
	Sentences int
}

// ComputeStats counts characters, whitespace-separated words, and delimiter
// terminated sentences over serialised content. Content with words but no
// delimiter counts as a single open sentence.
func ComputeStats(content string) Stats {
	st := Stats{Chars: len(content)}

	st.Words = len(strings.Fields(content))

	for i := 0; i < len(content); i++ {
		if IsDelimiter(content[i]) {
			st.Sentences++
		}
	}
	if st.Sentences == 0 && st.Words > 0 {
		st.Sentences = 1
	}

	return st
}
