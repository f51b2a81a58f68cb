package main

import (
	"math/rand"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Address: "127.0.0.1:6380", Threads: 1, WordsPerValue: 1, VocabularySize: 1,
			SetPct: -1, HSetPct: -1, HMSetPct: -1,
		}
	}

	c := valid()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if c.Workload != "mixed" || c.KeyPrefix != "pika" || c.Field != "body" {
		t.Errorf("defaults not applied: %+v", c)
	}

	c = valid()
	c.Workload = "lists"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown workload")
	}

	c = valid()
	c.SetPct = 90
	if err := c.Validate(); err == nil {
		t.Error("expected error when percentages do not sum to 100")
	}
}

func TestOpSelectorFollowsDistribution(t *testing.T) {
	s := NewOpSelector(WorkloadDistribution{HSet: 100}, 1)
	for i := 0; i < 100; i++ {
		if op := s.Next(); op != OpHSet {
			t.Fatalf("expected HSET, got %s", op)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	text := NewTextGenerator(3, 4)

	set := BuildCommand(OpSet, "k", "body", 1, text, rng)
	if len(set) != 4 || set[0] != "STREAM" || set[1] != "SET" || set[2] != "k" {
		t.Errorf("unexpected SET command: %v", set)
	}
	if words := strings.Split(set[3].(string), " "); len(words) != 4 {
		t.Errorf("expected 4 words, got %v", words)
	}

	hset := BuildCommand(OpHSet, "h", "body", 1, text, rng)
	if len(hset) != 5 || hset[1] != "HSET" || hset[3] != "body" {
		t.Errorf("unexpected HSET command: %v", hset)
	}

	hmset := BuildCommand(OpHMSet, "h", "body", 3, text, rng)
	if len(hmset) != 9 || hmset[1] != "HMSET" || hmset[3] != "body" || hmset[5] != "extra1" {
		t.Errorf("unexpected HMSET command: %v", hmset)
	}
}

func TestKeyGeneratorSeparatesTypes(t *testing.T) {
	g := NewKeyGenerator("p")
	if k := g.Next(OpSet); !strings.HasPrefix(k, "p:str:") {
		t.Errorf("unexpected string key %s", k)
	}
	if k := g.Next(OpHMSet); !strings.HasPrefix(k, "p:hash:") {
		t.Errorf("unexpected hash key %s", k)
	}
}
