// Package config binds the server's bootstrap settings. Loading from disk
// is an ambient concern the core treats as an external collaborator; it is
// realized here with an INI file (the same library the CAN-bus stack in
// this dependency family uses for its node configuration) plus a
// functional-options layer for programmatic overrides in tests and the CLI.
package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// ServerSettings is the configuration binding the server reads its listen
// port and storage root from. Port 0 means "OS-chosen"; the resolved port
// is exposed by the server after Serve binds the listener.
type ServerSettings struct {
	ListenAddr     string
	DataDir        string
	PoolCapacity   int
	WatchdogPeriod time.Duration
	FeedQueueDepth int
	Development    bool
}

// Option mutates a ServerSettings during construction.
type Option func(*ServerSettings)

func WithListenAddr(addr string) Option { return func(s *ServerSettings) { s.ListenAddr = addr } }
func WithDataDir(dir string) Option     { return func(s *ServerSettings) { s.DataDir = dir } }
func WithPoolCapacity(n int) Option     { return func(s *ServerSettings) { s.PoolCapacity = n } }
func WithWatchdogPeriod(d time.Duration) Option {
	return func(s *ServerSettings) { s.WatchdogPeriod = d }
}
func WithFeedQueueDepth(n int) Option { return func(s *ServerSettings) { s.FeedQueueDepth = n } }
func WithDevelopment(v bool) Option   { return func(s *ServerSettings) { s.Development = v } }

// Default returns the baseline settings, then applies opts.
func Default(opts ...Option) *ServerSettings {
	s := &ServerSettings{
		ListenAddr:     ":7070",
		DataDir:        "./data",
		PoolCapacity:   4,
		WatchdogPeriod: 10 * time.Second,
		FeedQueueDepth: 1_000_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads an INI file at path into a ServerSettings, falling back to
// Default()'s values for any key the file omits. opts are applied after
// the file so callers (and tests) can still override individual fields.
func Load(path string, opts ...Option) (*ServerSettings, error) {
	s := Default()

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	sec := cfg.Section("server")

	if k := sec.Key("listen_addr"); k.String() != "" {
		s.ListenAddr = k.String()
	}
	if k := sec.Key("data_dir"); k.String() != "" {
		s.DataDir = k.String()
	}
	if v, err := sec.Key("pool_capacity").Int(); err == nil && v > 0 {
		s.PoolCapacity = v
	}
	if v, err := sec.Key("watchdog_period_seconds").Int(); err == nil && v > 0 {
		s.WatchdogPeriod = time.Duration(v) * time.Second
	}
	if v, err := sec.Key("feed_queue_depth").Int(); err == nil && v > 0 {
		s.FeedQueueDepth = v
	}
	s.Development = sec.Key("development").MustBool(false)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
