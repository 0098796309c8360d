package inference

import (
	"time"

	"github.com/eleven-am/trackie/internal/shared"
	"google.golang.org/grpc/credentials"
)

const (
	serviceName = "trackie.inference.v1.Inference"

	methodDetect        = "/" + serviceName + "/Detect"
	methodEstimateDepth = "/" + serviceName + "/EstimateDepth"
	methodEmbedFaces    = "/" + serviceName + "/EmbedFaces"
	methodClasses       = "/" + serviceName + "/Classes"
)

type Config struct {
	Address             string
	Token               string
	TLSCreds            credentials.TransportCredentials
	Timeout             time.Duration
	ConfidenceThreshold float64
	Backoff             shared.BackoffConfig
}
