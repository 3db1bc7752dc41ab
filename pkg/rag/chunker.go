// Package rag implements the document pipeline: text extraction, chunking,
// embedding, vector storage, and similarity search.
package rag

// SplitText cuts text into fixed-size rune windows with the given overlap.
// Windows are exact slices of the input, so concatenating the chunks with the
// overlaps removed reproduces the text. The final window may be shorter.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
