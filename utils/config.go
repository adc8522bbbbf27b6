package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v2"

	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	defaultListenPort        = "5993"
	defaultDiskUsageInterval = 10 * time.Minute
)

var ErrInvalidRootDirectory = errors.New("invalid root directory")

type LogAppenderConfig struct {
	RootDirectory     string
	MaxSegmentBytes   uint64
	LogLevel          log.Level
	ListenPort        string
	DiskUsageInterval time.Duration
	Topics            []string
	StartTime         time.Time
}

// ParseConfig reads a YAML document into a LogAppenderConfig, filling defaults
// for everything but the root directory.
func ParseConfig(data []byte) (*LogAppenderConfig, error) {
	var aux struct {
		RootDirectory     string   `yaml:"root_directory"`
		MaxSegmentBytes   string   `yaml:"max_segment_bytes"`
		LogLevel          string   `yaml:"log_level"`
		ListenPort        string   `yaml:"listen_port"`
		DiskUsageInterval int      `yaml:"disk_usage_interval"`
		Topics            []string `yaml:"topics"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if aux.RootDirectory == "" {
		return nil, ErrInvalidRootDirectory
	}

	m := &LogAppenderConfig{
		RootDirectory:     aux.RootDirectory,
		MaxSegmentBytes:   segment.MaxSegmentBytes,
		LogLevel:          log.ParseLevel(aux.LogLevel),
		ListenPort:        fmt.Sprintf(":%v", defaultListenPort),
		DiskUsageInterval: defaultDiskUsageInterval,
		StartTime:         time.Now(),
	}

	if aux.MaxSegmentBytes != "" {
		size, err := ParseByteSize(aux.MaxSegmentBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid max_segment_bytes %q: %w", aux.MaxSegmentBytes, err)
		}
		m.MaxSegmentBytes = size
	}

	if aux.ListenPort != "" {
		m.ListenPort = fmt.Sprintf(":%v", strings.TrimPrefix(aux.ListenPort, ":"))
	}

	if aux.DiskUsageInterval > 0 {
		m.DiskUsageInterval = time.Duration(aux.DiskUsageInterval) * time.Second
	}

	for _, t := range aux.Topics {
		t = strings.TrimSpace(t)
		if t == "" {
			log.Warn("ignoring empty topic name in configuration")
			continue
		}
		m.Topics = append(m.Topics, t)
	}

	return m, nil
}

// ParseByteSize accepts either a plain byte count ("2048") or a bytefmt
// quantity ("1K", "64MB").
func ParseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n == 0 {
			return 0, errors.New("size must be positive")
		}
		return n, nil
	}
	return bytefmt.ToBytes(s)
}
