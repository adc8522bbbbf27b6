package di

import (
	"github.com/alpacahq/logappender/catalog"
	"github.com/alpacahq/logappender/utils/log"
)

func (c *Container) GetCatalogDir() *catalog.Directory {
	if c.catalogDir != nil {
		return c.catalogDir
	}

	catalogDir, err := catalog.NewDirectory(c.GetAbsRootDir())
	if err != nil {
		log.Error("Could not create a catalog directory: %s.", err.Error())
		panic(err)
	}

	c.catalogDir = catalogDir
	return c.catalogDir
}
