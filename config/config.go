// Package config holds the tunables the render graph, scheduler and
// resource manager read at startup: worker counts, frame-in-flight
// depth, staging pool size and descriptor pool capacities.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxFramesInFlight is the default depth of the frame fence
	// ring allocated by rg.Graph.Compile.
	DefaultMaxFramesInFlight = 3

	dflWorkerCount      = 0 // 0 means runtime.GOMAXPROCS(0)
	dflStagingPoolSize  = 1 << 20
	dflMaxDrawable      = 2048
	dflMaxMaterial      = 512
	dflMaxInstanceSets  = 1024
	dflMaxRecordThreads = 4
)

// Config configures one render graph instance and the scheduler pool
// it shares with a resource manager.
type Config struct {
	// MaxFramesInFlight is the depth of the frame fence ring.
	//
	// Default is DefaultMaxFramesInFlight.
	MaxFramesInFlight int `yaml:"maxFramesInFlight"`

	// WorkerCount is the number of scheduler.Pool worker goroutines.
	// Zero selects runtime.GOMAXPROCS(0).
	//
	// Default is 0.
	WorkerCount int `yaml:"workerCount"`

	// MaxRecordingThreads bounds how many passes in a topological
	// layer record concurrently.
	//
	// Default is 4.
	MaxRecordingThreads int `yaml:"maxRecordingThreads"`

	// StagingPoolSize is the block size staging.Manager allocates new
	// buffers at when no free block is large enough.
	//
	// Default is 1MiB.
	StagingPoolSize int64 `yaml:"stagingPoolSize"`

	// MaxDrawable is the maximum number of draws submitted per frame.
	//
	// Default is 2048.
	MaxDrawable int `yaml:"maxDrawable"`

	// MaxMaterial is the maximum number of distinct materials.
	//
	// Default is 512.
	MaxMaterial int `yaml:"maxMaterial"`

	// MaxInstanceDescriptorSets bounds the device's instance descriptor
	// set pool.
	//
	// Default is 1024.
	MaxInstanceDescriptorSets int `yaml:"maxInstanceDescriptorSets"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxFramesInFlight:         DefaultMaxFramesInFlight,
		WorkerCount:               dflWorkerCount,
		MaxRecordingThreads:       dflMaxRecordThreads,
		StagingPoolSize:           dflStagingPoolSize,
		MaxDrawable:               dflMaxDrawable,
		MaxMaterial:               dflMaxMaterial,
		MaxInstanceDescriptorSets: dflMaxInstanceSets,
	}
}

// LoadYAML reads a Config from a YAML file, starting from
// DefaultConfig and overriding only the fields present in the file.
func LoadYAML(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
