package telegram

import (
	"strings"

	"github.com/taskrunner/gateway/pkg/protocol"
)

// chunkMessage splits content into pieces no larger than the chat
// platform's message-size limit, breaking at line boundaries where
// possible. A single line longer than the limit is hard-split mid-line
// rather than dropped.
func chunkMessage(content string) []string {
	limit := protocol.ChatMessageLimitBytes
	if len(content) <= limit {
		if content == "" {
			return []string{""}
		}
		return []string{content}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}

// firstChunk returns just the first chunk of content, for message edits
// (Telegram edits operate on one existing message, so a status update
// that has grown past the limit is truncated rather than split).
func firstChunk(content string) string {
	return chunkMessage(content)[0]
}
