package models

import (
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-01T00:00:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionResponse struct {
	Body session.Status
}

// Encoder models
type EncoderData struct {
	Encoders []encoder.Info `json:"encoders" doc:"Video encoders reported by ffmpeg"`
	Selected string         `json:"selected,omitempty" example:"libx264" doc:"Preferred H.264 encoder"`
	Count    int            `json:"count" example:"12" doc:"Number of video encoders"`
}

type EncodersResponse struct {
	Body EncoderData
}
