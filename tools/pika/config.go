package main

import (
	"fmt"
	"time"
)

type Config struct {
	// Connection
	Address string // kvstream proxy
	Redis   string // Backing Redis for digest subscription; empty disables it
	Channel string

	// Run options
	Workload   string
	Operations int
	Duration   time.Duration
	Threads    int

	// Workload percentages (-1 means use workload default)
	SetPct   int
	HSetPct  int
	HMSetPct int

	// Value generation
	KeyPrefix      string
	Field          string
	WordsPerValue  int
	VocabularySize int
	FieldsPerHMSet int

	// Declare catch-all filters before running
	Declare bool
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}
	if c.Operations < 0 {
		return fmt.Errorf("operations must be non-negative")
	}
	if c.WordsPerValue < 1 {
		return fmt.Errorf("words must be at least 1")
	}
	if c.VocabularySize < 1 {
		return fmt.Errorf("vocabulary must be at least 1")
	}
	if c.FieldsPerHMSet < 1 {
		c.FieldsPerHMSet = 1
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "pika"
	}
	if c.Field == "" {
		c.Field = "body"
	}

	switch c.Workload {
	case "mixed", "string", "hash":
	case "":
		c.Workload = "mixed"
	default:
		return fmt.Errorf("invalid workload: %s (must be mixed|string|hash)", c.Workload)
	}

	return c.GetWorkloadDistribution().Validate()
}

func (c *Config) GetWorkloadDistribution() WorkloadDistribution {
	var dist WorkloadDistribution

	switch c.Workload {
	case "mixed":
		dist = WorkloadDistribution{Set: 50, HSet: 30, HMSet: 20}
	case "string":
		dist = WorkloadDistribution{Set: 100}
	case "hash":
		dist = WorkloadDistribution{HSet: 60, HMSet: 40}
	}

	if c.SetPct >= 0 {
		dist.Set = c.SetPct
	}
	if c.HSetPct >= 0 {
		dist.HSet = c.HSetPct
	}
	if c.HMSetPct >= 0 {
		dist.HMSet = c.HMSetPct
	}

	return dist
}

type WorkloadDistribution struct {
	Set   int
	HSet  int
	HMSet int
}

func (w WorkloadDistribution) Total() int {
	return w.Set + w.HSet + w.HMSet
}

func (w WorkloadDistribution) Validate() error {
	if total := w.Total(); total != 100 {
		return fmt.Errorf("workload percentages must sum to 100, got %d", total)
	}
	return nil
}
