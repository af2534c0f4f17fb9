package types

import "github.com/goccy/go-json"

// SSE event names emitted by the streaming lookup endpoint.
const (
	EventConfig        = "config"
	EventProgress      = "progress"
	EventPartial       = "partial"
	EventComplete      = "complete"
	EventCompleteStart = "complete_start"
	EventCompleteChunk = "complete_chunk"
	EventCompleteEnd   = "complete_end"
	EventError         = "error"
)

// StageInfo describes one stage of a request category, as announced in
// the initial config event.
type StageInfo struct {
	Name        string `json:"name"`
	Progress    int    `json:"progress"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ConfigEvent is the first event of every stream.
type ConfigEvent struct {
	Category string      `json:"category"`
	Stages   []StageInfo `json:"stages"`
}

// ProgressEvent carries a monotone progress update.
type ProgressEvent struct {
	Stage    string          `json:"stage"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// PartialEvent carries the cumulative partial entry at a pipeline
// boundary.
type PartialEvent struct {
	Entry *SynthesizedEntry `json:"entry"`
}

// ErrorEvent is the terminal event of a failed stream.
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CompleteStartEvent opens a chunked terminal payload for entries whose
// serialized form exceeds the single-event limit.
type CompleteStartEvent struct {
	Fingerprint string `json:"fingerprint"`
	TotalBytes  int    `json:"total_bytes"`
	ChunkCount  int    `json:"chunk_count"`
}

// CompleteChunkEvent carries one slice of a chunked terminal payload.
// ChunkIndex is monotone starting at zero.
type CompleteChunkEvent struct {
	ChunkIndex int    `json:"chunk_index"`
	Data       string `json:"data"`
}

// CompleteEndEvent closes a chunked terminal payload.
type CompleteEndEvent struct {
	Checksum string `json:"checksum"`
}
