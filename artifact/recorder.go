package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentgraph/event"
)

// TranscriptName is the artifact name under which NewTranscriptRecorder saves
// each run's final messages.
const TranscriptName = "transcript.json"

// NewTranscriptRecorder returns an event listener that archives the final
// messages of every run as a JSON artifact keyed by run ID. Register it on the
// pipeline to get a retrievable transcript per run.
func NewTranscriptRecorder(store Store) event.Listener {
	return event.NewFuncListener(event.PointResult, func(_ context.Context, n *event.Notification) error {
		data, err := json.MarshalIndent(n.Messages, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		if err := store.Save(n.RunID, TranscriptName, data); err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
		return nil
	})
}
