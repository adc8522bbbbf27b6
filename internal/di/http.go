package di

import (
	"net/http"
	"time"

	"github.com/alpacahq/logappender/frontend"
)

const readHeaderTimeout = 10 * time.Second

// GetHTTPServer returns the server for the operator endpoints, listening on
// the configured port.
func (c *Container) GetHTTPServer() *http.Server {
	if c.httpServer != nil {
		return c.httpServer
	}
	mux := http.NewServeMux()
	frontend.NewUtilityAPIHandlers(c.config.StartTime, c.topicNamesSnapshot).Register(mux)

	c.httpServer = &http.Server{
		Addr:              c.config.ListenPort,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return c.httpServer
}
