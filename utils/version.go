package utils

// Set at build time, e.g.
// go build -ldflags "-X github.com/alpacahq/logappender/utils.GitHash=$(git rev-parse HEAD)".
var (
	Tag        = "dev"
	GitHash    = "unknown"
	BuildStamp = "unknown"
)
