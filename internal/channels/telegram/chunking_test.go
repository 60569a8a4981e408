package telegram

import (
	"strings"
	"testing"

	"github.com/taskrunner/gateway/pkg/protocol"
)

func TestChunkMessage_ShortContentIsSingleChunk(t *testing.T) {
	chunks := chunkMessage("hello world")
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("chunkMessage() = %v, want a single unchanged chunk", chunks)
	}
}

func TestChunkMessage_EmptyContent(t *testing.T) {
	chunks := chunkMessage("")
	if len(chunks) != 1 || chunks[0] != "" {
		t.Errorf("chunkMessage(\"\") = %v, want one empty chunk", chunks)
	}
}

func TestChunkMessage_SplitsOnLineBoundaries(t *testing.T) {
	line := strings.Repeat("a", protocol.ChatMessageLimitBytes-10)
	content := line + "\n" + line + "\n" + line

	chunks := chunkMessage(content)
	if len(chunks) < 2 {
		t.Fatalf("expected content over the limit to split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > protocol.ChatMessageLimitBytes {
			t.Errorf("chunk of length %d exceeds the limit %d", len(c), protocol.ChatMessageLimitBytes)
		}
	}
}

func TestChunkMessage_HardSplitsOversizedLine(t *testing.T) {
	line := strings.Repeat("b", protocol.ChatMessageLimitBytes*2+5)
	chunks := chunkMessage(line)

	if len(chunks) < 2 {
		t.Fatalf("expected an oversized single line to be hard-split, got %d chunks", len(chunks))
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		if len(c) > protocol.ChatMessageLimitBytes {
			t.Errorf("chunk of length %d exceeds the limit", len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != line {
		t.Errorf("hard-split chunks did not reassemble to the original line")
	}
}

func TestFirstChunk_ReturnsOnlyTheFirstPiece(t *testing.T) {
	line := strings.Repeat("c", protocol.ChatMessageLimitBytes+100)
	got := firstChunk(line)
	if len(got) > protocol.ChatMessageLimitBytes {
		t.Errorf("firstChunk() returned %d bytes, want at most %d", len(got), protocol.ChatMessageLimitBytes)
	}
	if got != line[:len(got)] {
		t.Errorf("firstChunk() did not return a prefix of the original content")
	}
}
