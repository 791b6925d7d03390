package handlers

import (
	"time"

	"media-refiner/internal/refiner"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 512 << 20

type Handlers struct {
	engine    *refiner.Engine
	started   time.Time
	maxUpload int64
}

func New(engine *refiner.Engine) *Handlers {
	return &Handlers{
		engine:    engine,
		started:   time.Now(),
		maxUpload: DefaultMaxUploadBytes,
	}
}
