// Package protocol holds the wire-level names shared between the
// pipeline/coordinator and the chat front-end: event names pushed to the
// status channel and the message-chunking limits the front-end adapter
// enforces.
package protocol

// Event names broadcast from the Coordinator to the chat front-end's
// status channel.
const (
	EventStageChanged = "stage.changed"
	EventLiveOutput   = "live_output"
	EventTaskDone     = "task.done"
	EventTaskFailed   = "task.failed"
	EventHealth       = "health"
)

// Task type tags, mirrored from internal/pipeline so the chat front-end
// can render a task's classification without importing the pipeline
// package directly.
const (
	TaskTypeProject    = "project"
	TaskTypeFrontend   = "frontend"
	TaskTypeUIDesign   = "ui_design"
	TaskTypeAutomation = "automation"
	TaskTypeData       = "data"
	TaskTypeFile       = "file"
	TaskTypeCode       = "code"
)

// ChatMessageLimitBytes is the outbound chat platform's single-message
// byte limit; the front-end chunks any longer response at line
// boundaries, hard-splitting any single line that still exceeds it.
const ChatMessageLimitBytes = 4000
