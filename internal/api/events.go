package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/PZwoodcat/Oleppy-Free/internal/events"
)

// registerSSERoutes registers the session event stream. The first message is
// the session state at connection time.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session state changes, finalized segments, dropped frames and device losses",
		Tags:        []string{"events"},
	}, map[string]any{
		"session-state-changed": events.SessionStateChangedEvent{},
		"segment-finalized":     events.SegmentFinalizedEvent{},
		"frame-dropped":         events.FrameDroppedEvent{},
		"device-lost":           events.DeviceLostEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		if s.eventBus != nil {
			defer events.SubscribeAll(s.eventBus, eventCh)()
		}

		if s.options.Status != nil {
			st := s.options.Status()
			if err := send.Data(events.SessionStateChangedEvent{
				Session:   st.Session,
				State:     st.State,
				Segment:   st.Segment,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
