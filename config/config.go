// Package config resolves the immutable Config snapshot consumed by the
// capture, interception, and transport layers, mirroring AgentConfig's
// three-channel override (agent args, process properties, environment
// variables; later wins).
package config

import (
	"log"
	"strconv"
	"strings"
)

// ReleaseContext carries resolved release/git metadata, sent as part of the
// register envelope. Nil when no release information is available from any
// source.
type ReleaseContext struct {
	CommitHash         string `json:"commit_hash"`
	CommitShort        string `json:"commit_short"`
	Branch             string `json:"branch"`
	RemoteURL          string `json:"remote_url"`
	Version            string `json:"version"`
	ProjectName        string `json:"project_name"`
	ProjectIdentifier  string `json:"project_identifier"`
	Source             string `json:"source"`
	CapturedAt         string `json:"captured_at"`
}

// Config is the immutable snapshot consumed by the capture, interception,
// and transport layers. Built once at startup; read-only thereafter.
type Config struct {
	APIKey            string
	BackendURL        string
	Environment       string
	AgentID           string
	Hostname          string
	SamplingRate      float64
	MaxCaptureDepth   int
	MaxStringLength   int
	MaxCollectionSize int
	IncludePatterns   []string
	ExcludePatterns   []string
	Debug             bool
	ReleaseContext    *ReleaseContext

	// Release inputs, kept around only long enough for resolveGitContext
	// to combine them with platform env vars.
	release    string
	version    string
	commit     string
	branch     string
	repository string
}

var defaultExcludePatterns = []string{
	"java.*", "javax.*", "sun.*", "jdk.*", "com.sun.*",
	"org.slf4j.*", "ch.qos.logback.*", "org.apache.logging.*",
}

// Load resolves a Config from agentArgs ("k=v,k=v"), a process-properties
// map (the Go analogue of JVM -D system properties, keyed "aivory.*"), and
// the environment (keyed "AIVORY_*"), in that override order — later
// channels win, exactly as AgentConfig.parse does.
func Load(agentArgs string, properties map[string]string, env func(string) string) *Config {
	c := &Config{
		BackendURL:        "wss://api.aivory.net/ws/agent",
		Environment:       "production",
		SamplingRate:      1.0,
		MaxCaptureDepth:   10,
		MaxStringLength:   1000,
		MaxCollectionSize: 100,
		IncludePatterns:   []string{"*"},
		ExcludePatterns:   append([]string(nil), defaultExcludePatterns...),
		Hostname:          resolveHostname(),
		AgentID:           generateAgentID(),
	}

	for _, arg := range strings.Split(agentArgs, ",") {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) == 2 {
			c.setFromKeyValue(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1]))
		}
	}

	c.loadFromProperties(properties)
	c.loadFromEnvironment(env)

	c.ReleaseContext = c.resolveGitContext(env)
	if c.ReleaseContext != nil {
		log.Printf("aivory: release context version=%s commit=%s branch=%s project=%s",
			orNA(c.ReleaseContext.Version), orNA(c.ReleaseContext.CommitShort),
			orNA(c.ReleaseContext.Branch), orNA(c.ReleaseContext.ProjectIdentifier))
	} else if c.Debug {
		log.Printf("aivory: no release context available (set AIVORY_RELEASE or pass release= in agent args)")
	}

	return c
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func (c *Config) setFromKeyValue(key, value string) {
	switch strings.ToLower(key) {
	case "apikey", "api_key":
		c.APIKey = value
	case "backendurl", "backend_url":
		c.BackendURL = value
	case "environment", "env":
		c.Environment = value
	case "samplingrate", "sampling_rate":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			c.SamplingRate = f
		}
	case "maxdepth", "max_depth":
		if n, err := strconv.Atoi(value); err == nil {
			c.MaxCaptureDepth = n
		}
	case "include":
		c.IncludePatterns = strings.Split(value, ";")
	case "exclude":
		c.ExcludePatterns = strings.Split(value, ";")
	case "debug":
		c.Debug = value == "true"
	case "release":
		c.release = value
	case "version":
		c.version = value
	case "commit":
		c.commit = value
	case "branch":
		c.branch = value
	case "repository", "repo":
		c.repository = value
	}
}

func (c *Config) loadFromProperties(props map[string]string) {
	get := func(key string) (string, bool) {
		v, ok := props[key]
		return v, ok
	}
	if v, ok := get("aivory.api.key"); ok {
		c.APIKey = v
	}
	if v, ok := get("aivory.backend.url"); ok {
		c.BackendURL = v
	}
	if v, ok := get("aivory.environment"); ok {
		c.Environment = v
	}
	if v, ok := get("aivory.sampling.rate"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SamplingRate = f
		}
	}
	if v, ok := get("aivory.capture.maxDepth"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCaptureDepth = n
		}
	}
	if v, ok := get("aivory.capture.maxStringLength"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxStringLength = n
		}
	}
	if v, ok := get("aivory.capture.maxCollectionSize"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCollectionSize = n
		}
	}
	if v, ok := get("aivory.include"); ok {
		c.IncludePatterns = strings.Split(v, ";")
	}
	if v, ok := get("aivory.exclude"); ok {
		c.ExcludePatterns = strings.Split(v, ";")
	}
	if v, ok := get("aivory.log.level"); ok && strings.EqualFold(v, "DEBUG") {
		c.Debug = true
	}
	if v, ok := get("aivory.debug"); ok {
		c.Debug = v == "true"
	}
	if v, ok := get("aivory.release"); ok {
		c.release = v
	}
	if v, ok := get("aivory.version"); ok {
		c.version = v
	}
	if v, ok := get("aivory.commit"); ok {
		c.commit = v
	}
	if v, ok := get("aivory.branch"); ok {
		c.branch = v
	}
	if v, ok := get("aivory.repository"); ok {
		c.repository = v
	}
}

func (c *Config) loadFromEnvironment(env func(string) string) {
	if env == nil {
		return
	}
	set := func(key string, assign func(string)) {
		if v := env(key); v != "" {
			assign(v)
		}
	}
	set("AIVORY_API_KEY", func(v string) { c.APIKey = v })
	set("AIVORY_BACKEND_URL", func(v string) { c.BackendURL = v })
	set("AIVORY_ENVIRONMENT", func(v string) { c.Environment = v })
	set("AIVORY_SAMPLING_RATE", func(v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SamplingRate = f
		}
	})
	set("AIVORY_MAX_DEPTH", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCaptureDepth = n
		}
	})
	set("AIVORY_MAX_STRING_LENGTH", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxStringLength = n
		}
	})
	set("AIVORY_MAX_COLLECTION_SIZE", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCollectionSize = n
		}
	})
	set("AIVORY_INCLUDE", func(v string) { c.IncludePatterns = strings.Split(v, ";") })
	set("AIVORY_EXCLUDE", func(v string) { c.ExcludePatterns = strings.Split(v, ";") })
	set("AIVORY_DEBUG", func(v string) { c.Debug = v == "true" })
	set("AIVORY_RELEASE", func(v string) { c.release = v })
	set("AIVORY_VERSION", func(v string) { c.version = v })
	set("AIVORY_COMMIT", func(v string) { c.commit = v })
	set("AIVORY_BRANCH", func(v string) { c.branch = v })
	set("AIVORY_REPOSITORY", func(v string) { c.repository = v })
}

// ShouldSample returns true when SamplingRate >= 1, false when <= 0, and
// otherwise true with probability SamplingRate drawn per call (spec §6).
func (c *Config) ShouldSample(draw func() float64) bool {
	if c.SamplingRate >= 1.0 {
		return true
	}
	if c.SamplingRate <= 0.0 {
		return false
	}
	return draw() < c.SamplingRate
}
