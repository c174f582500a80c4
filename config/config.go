// Package config owns Euler's process-wide configuration, mirroring
// aistore's cmn.GCO ("global config owner") pattern: a *Config behind an
// atomic pointer, loaded once at startup via viper and swapped wholesale
// on reload rather than mutated field-by-field.
package config

import (
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// DataScope is the value set shared by the server option enums of
// spec §6 (load_data_type, global_sampler_type).
type DataScope string

const (
	ScopeNode DataScope = "node"
	ScopeEdge DataScope = "edge"
	ScopeAll  DataScope = "all"
	ScopeNone DataScope = "none"
)

// InitMode is the client option `init` of spec §6.
type InitMode string

const (
	InitEager InitMode = "eager"
	InitLazy  InitMode = "lazy"
)

// ClientMode is the client option `mode` of spec §6.
type ClientMode string

const (
	ModeLocal          ClientMode = "Local"
	ModeRemote         ClientMode = "Remote"
	ModeGraphPartition ClientMode = "graph_partition"
)

// ServerOptions is the full server-side option set (spec §6).
type ServerOptions struct {
	Port             int
	DataPath         string
	ZKServer         string
	ZKPath           string
	LoadDataType     DataScope
	GlobalSamplerType DataScope
	ThreadPoolName   string
	NumThreads       int
	Server           string // optional advertised-host override
}

// ClientOptions is the full client-side option set (spec §6).
type ClientOptions struct {
	Mode                   ClientMode
	ShardNum               int
	ZKServer               string
	ZKPath                 string
	NumRetries             int
	NumChannelsPerHost     int
	BadHostCleanupInterval time.Duration
	BadHostTimeout         time.Duration
	Init                   InitMode
}

// DefaultClientOptions matches the original's RpcManager defaults
// (client/rpc_manager.h): small retry count, periodic bad-host cleanup.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Mode:                   ModeRemote,
		NumRetries:             10,
		NumChannelsPerHost:     1,
		BadHostCleanupInterval: 10 * time.Second,
		BadHostTimeout:         60 * time.Second,
		Init:                   InitEager,
	}
}

var current atomic.Pointer[ClientOptions]

func init() {
	opts := DefaultClientOptions()
	current.Store(&opts)
}

// Get returns the process-wide client config. Safe for concurrent use;
// readers never block a concurrent Reload.
func Get() *ClientOptions { return current.Load() }

// Reload re-reads configuration from file/env/flags via viper and
// publishes it atomically; in-flight queries keep the options snapshot
// they started with.
func Reload(v *viper.Viper) error {
	opts := DefaultClientOptions()
	if v.IsSet("mode") {
		opts.Mode = ClientMode(v.GetString("mode"))
	}
	if v.IsSet("shard_num") {
		opts.ShardNum = v.GetInt("shard_num")
	}
	opts.ZKServer = v.GetString("zk_server")
	opts.ZKPath = v.GetString("zk_path")
	if v.IsSet("num_retries") {
		opts.NumRetries = v.GetInt("num_retries")
	}
	if v.IsSet("num_channels_per_host") {
		opts.NumChannelsPerHost = v.GetInt("num_channels_per_host")
	}
	if v.IsSet("bad_host_cleanup_interval") {
		opts.BadHostCleanupInterval = v.GetDuration("bad_host_cleanup_interval")
	}
	if v.IsSet("bad_host_timeout") {
		opts.BadHostTimeout = v.GetDuration("bad_host_timeout")
	}
	if v.IsSet("init") {
		opts.Init = InitMode(v.GetString("init"))
	}
	current.Store(&opts)
	return nil
}

// NewViper constructs a viper reader wired to Euler's env prefix and
// config file conventions, the way kbukum-gokit and NGOClaw's gateway
// wire spf13/viper for service config.
func NewViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("euler")
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	return v
}
