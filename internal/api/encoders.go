package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/PZwoodcat/Oleppy-Free/internal/api/models"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
)

const probeTimeout = 10 * time.Second

// registerEncoderRoutes registers the encoder listing.
func (s *Server) registerEncoderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-encoders",
		Method:      http.MethodGet,
		Path:        "/api/encoders",
		Summary:     "List Encoders",
		Description: "List the video encoders of the configured ffmpeg and the preferred H.264 encoder",
		Tags:        []string{"encoders"},
		Errors:      []int{500},
	}, func(ctx context.Context, _ *struct{}) (*models.EncodersResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		probe := s.options.Probe
		if probe == nil {
			probe = func(ctx context.Context) ([]encoder.Info, error) {
				return encoder.Probe(ctx, s.options.FFmpegBinary)
			}
		}
		list, err := probe(ctx)
		if err != nil {
			s.logger.Warn("Encoder probe failed", "error", err)
			return nil, huma.Error500InternalServerError("failed to list encoders", err)
		}

		data := models.EncoderData{Encoders: list, Count: len(list)}
		if best, ok := encoder.SelectH264(list); ok {
			data.Selected = best.Name
		}
		return &models.EncodersResponse{Body: data}, nil
	})
}
