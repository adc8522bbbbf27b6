package di

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils/log"
)

// GetTopics opens every topic found under the root directory plus the ones
// named in the configuration, creating those that do not exist yet.
func (c *Container) GetTopics() ([]*topic.Topic, error) {
	names := map[string]struct{}{}
	for _, name := range c.GetCatalogDir().TopicNames() {
		names[name] = struct{}{}
	}
	for _, name := range c.config.Topics {
		names[name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range names {
		if _, err := c.getTopic(name); err != nil {
			return nil, err
		}
	}

	ret := make([]*topic.Topic, 0, len(c.topicNames))
	for _, name := range c.topicNames {
		ret = append(ret, c.topics[name])
	}
	return ret, nil
}

// GetTopic returns the named topic, opening or creating it on first use.
func (c *Container) GetTopic(name string) (*topic.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getTopic(name)
}

func (c *Container) getTopic(name string) (*topic.Topic, error) {
	if t, ok := c.topics[name]; ok {
		return t, nil
	}
	if c.topics == nil {
		c.topics = make(map[string]*topic.Topic)
	}

	t, err := topic.OpenOrCreate(c.GetAbsRootDir(), name, topic.Config{MaxSegmentBytes: c.config.MaxSegmentBytes})
	if err != nil {
		return nil, fmt.Errorf("open topic %s: %w", name, err)
	}
	c.topics[name] = t
	c.topicNames = append(c.topicNames, name)
	sort.Strings(c.topicNames)
	log.Info("topic %s ready with %d partitions", name, len(t.Partitions()))
	return t, nil
}

func (c *Container) topicNamesSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.topicNames...)
}

// Close releases every topic opened through the container.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, name := range c.topicNames {
		errs = append(errs, c.topics[name].Close())
	}
	c.topics = nil
	c.topicNames = nil
	return errors.Join(errs...)
}
