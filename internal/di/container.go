package di

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/alpacahq/logappender/catalog"
	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

// Container builds the long-lived objects of a logappender process lazily and
// hands out the same instance on every call.
type Container struct {
	// mu guards topics and topicNames, which the heartbeat reads while serving
	mu sync.Mutex

	config     *utils.LogAppenderConfig
	absRootDir string
	catalogDir *catalog.Directory
	topics     map[string]*topic.Topic
	topicNames []string
	httpServer *http.Server
}

func NewContainer(cfg *utils.LogAppenderConfig) *Container {
	return &Container{config: cfg}
}

func (c *Container) GetAbsRootDir() string {
	if c.absRootDir != "" {
		return c.absRootDir
	}
	relRootDir := c.config.RootDirectory

	// rootDir is the absolute path to the data directory.
	// e.g. rootDir = "/project/logappender/data"
	rootDir, err := filepath.Abs(filepath.Clean(relRootDir))
	if err != nil {
		log.Error("Cannot take absolute path of root directory %s", err.Error())
	} else {
		log.Info("Root Directory: %s", rootDir)
		const ownerGroupAll = 0o770
		err = os.MkdirAll(rootDir, ownerGroupAll)
		if err != nil && !os.IsExist(err) {
			log.Error("Could not create root directory: %s", err.Error())
			panic(err)
		}
	}
	c.absRootDir = rootDir
	return c.absRootDir
}
