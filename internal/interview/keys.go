package interview

import "fmt"

// AudioKey builds the cache key for a question or follow-up audio slot. The
// "{questionIndex}_{followUpIndex}" scheme, with -1 for the main question,
// also correlates transcription-channel sessions, so it must stay stable.
func AudioKey(question, followUp int) string {
	return fmt.Sprintf("%d_%d", question, followUp)
}
