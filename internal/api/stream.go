package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/internal/pipeline"
	"github.com/wordisle/lexiforge/internal/progress"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

const (
	// completeInlineLimit is the largest serialized entry delivered as a
	// single complete event; anything bigger streams as chunks.
	completeInlineLimit = 32 * 1024

	// chunkSize is the raw byte size of one complete_chunk payload
	// before base64 framing.
	chunkSize = 16 * 1024

	// partialBuffer bounds the queue of partial entries between the
	// pipeline and the SSE writer. When the writer falls behind, new
	// partials are dropped; the final entry always arrives via complete.
	partialBuffer = 16
)

type lookupOutcome struct {
	res *pipeline.Result
	err error
}

// LookupStream handles GET /lookup/{word}/stream. The stream always
// opens with one config event and terminates with exactly one of
// complete (possibly chunked) or error.
func (h *Handler) LookupStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	word := r.PathValue("word")
	opts := lookupOptions(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	tracker := progress.NewTracker(progress.CategoryLookup)
	changes, unsubscribe := tracker.Subscribe()
	defer unsubscribe()

	s := &sseWriter{w: w, flusher: flusher, logger: h.logger}
	s.writeEvent(types.EventConfig, types.ConfigEvent{
		Category: string(tracker.Category()),
		Stages:   stageInfos(tracker.Stages()),
	})

	partials := make(chan *types.SynthesizedEntry, partialBuffer)
	emit := func(_ string, entry *types.SynthesizedEntry) {
		select {
		case partials <- entry:
		default:
		}
	}

	done := make(chan lookupOutcome, 1)
	go func() {
		res, err := h.pipeline.Lookup(r.Context(), word, opts, tracker, emit)
		done <- lookupOutcome{res: res, err: err}
	}()

	for {
		select {
		case change := <-changes:
			if !change.Terminal {
				s.writeEvent(types.EventProgress, types.ProgressEvent{
					Stage:    change.Stage,
					Progress: change.Progress,
					Message:  change.Message,
					Details:  change.Details,
				})
				continue
			}
			s.drainPartials(partials)
			out := <-done
			if out.err != nil {
				le, ok := out.err.(*lferrors.LookupError)
				if !ok {
					le = lferrors.Wrap(lferrors.KindInternal, out.err, "lookup failed")
				}
				s.writeEvent(types.EventError, types.ErrorEvent{Kind: le.Kind, Message: le.Message})
				return
			}
			// The terminal change doubles as the final progress frame, so
			// even a cache hit reports progress 100 before its entry.
			s.writeEvent(types.EventProgress, types.ProgressEvent{
				Stage:    change.Stage,
				Progress: change.Progress,
				Message:  change.Message,
			})
			s.writeComplete(out.res.Entry)
			return
		case entry := <-partials:
			s.writeEvent(types.EventPartial, types.PartialEvent{Entry: entry})
		case <-r.Context().Done():
			// Client went away; the pipeline goroutine observes the same
			// context and unwinds on its own.
			return
		}
	}
}

func stageInfos(stages []progress.Stage) []types.StageInfo {
	infos := make([]types.StageInfo, len(stages))
	for i, st := range stages {
		infos[i] = types.StageInfo{
			Name:        st.Name,
			Progress:    st.Progress,
			Label:       st.Label,
			Description: st.Description,
		}
	}
	return infos
}

// sseWriter frames and flushes server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger
}

func (s *sseWriter) writeEvent(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("sse payload encode failed",
			slog.String("event", name), slog.String("error", err.Error()))
		return
	}
	if _, err := s.w.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n")); err != nil {
		return
	}
	s.flusher.Flush()
}

// drainPartials delivers whatever partials are still queued before the
// terminal event is written.
func (s *sseWriter) drainPartials(partials <-chan *types.SynthesizedEntry) {
	for {
		select {
		case entry := <-partials:
			s.writeEvent(types.EventPartial, types.PartialEvent{Entry: entry})
		default:
			return
		}
	}
}

// writeComplete delivers the final entry, chunked when its serialized
// form exceeds the inline limit.
func (s *sseWriter) writeComplete(entry *types.SynthesizedEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		s.writeEvent(types.EventError, types.ErrorEvent{
			Kind:    lferrors.KindInternal,
			Message: "entry encode failed",
		})
		return
	}
	if len(payload) <= completeInlineLimit {
		s.writeEvent(types.EventComplete, json.RawMessage(payload))
		return
	}

	chunks := (len(payload) + chunkSize - 1) / chunkSize
	s.writeEvent(types.EventCompleteStart, types.CompleteStartEvent{
		Fingerprint: entry.Fingerprint,
		TotalBytes:  len(payload),
		ChunkCount:  chunks,
	})
	for i := 0; i < chunks; i++ {
		start, end := i*chunkSize, (i+1)*chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		s.writeEvent(types.EventCompleteChunk, types.CompleteChunkEvent{
			ChunkIndex: i,
			Data:       base64.StdEncoding.EncodeToString(payload[start:end]),
		})
	}
	sum := sha256.Sum256(payload)
	s.writeEvent(types.EventCompleteEnd, types.CompleteEndEvent{
		Checksum: hex.EncodeToString(sum[:]),
	})
}
