package workflow

import (
	"context"
	"image"

	"betamode/internal/artifactcache"
	"betamode/internal/detect"
	"betamode/internal/queue"
)

// Fetcher obtains the bytes behind a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (queue.Payload, error)
	SetUserAgent(userAgent string)
}

// Detector finds labeled regions in an encoded image.
type Detector interface {
	Detect(ctx context.Context, img []byte) ([]detect.Detection, error)
}

// Encoder performs the image operations of the censor stage.
type Encoder interface {
	Decode(data []byte) (image.Image, error)
	Blacken(img image.Image, boxes []image.Rectangle) image.Image
	Downscale(img image.Image, maxDimension int) image.Image
	Encode(img image.Image, quality int) ([]byte, error)
}

// Cache stores censored artifacts under keys from artifactcache.Key.
type Cache interface {
	Path(key string) string
	Exists(key string) bool
	Write(key string, data []byte, meta artifactcache.Meta) error
	Read(key string) ([]byte, error)
}

// ResultWriter delivers outbound messages to the extension.
type ResultWriter interface {
	Write(v any) error
}

// Deps bundles the collaborators shared by both stages.
type Deps struct {
	Fetcher  Fetcher
	Detector Detector
	Encoder  Encoder
	Cache    Cache
	Writer   ResultWriter
}

// Settings holds the censoring parameters.
type Settings struct {
	CensoredLabels []string
	MinScore       float64
	MaxDimension   int
	Quality        int
}
