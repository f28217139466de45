// Package config loads the service's typed configuration:
// SYS_BASE_PATH/SERVICE_BASE_PATH/CONFIG_FILE_PATH locate a JSON file,
// which is decoded into a single typed struct instead of ad-hoc
// os.Getenv calls scattered through main. No environment variable
// overrides a value read from the file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// Listen is the listen{} config section.
type Listen struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	APIVersion    string        `json:"api_version"`
	Routes        []RouteConfig `json:"routes"`
	MaxConnections int          `json:"max_connections"`
	Cors          bool          `json:"cors"`
}

type RouteConfig struct {
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// LogHandler/LogLogger together are the logging{} config section.
type LogHandler struct {
	Alias       string `json:"alias"`
	Destination string `json:"destination"` // "console" | "localfs"
	MinLevel    string `json:"min_level"`
	Path        string `json:"path,omitempty"`
}

type LogLogger struct {
	Alias    string   `json:"alias"`
	Handlers []string `json:"handlers"`
	Level    string   `json:"level,omitempty"`
}

type Logging struct {
	Handlers []LogHandler `json:"handlers"`
	Loggers  []LogLogger  `json:"loggers"`
}

// DataStoreEntry is one data_store[] item: either an InMemory or a
// DbServer backend, discriminated by which pointer is non-nil (the
// JSON config expresses this as a tagged-union object).
type DataStoreEntry struct {
	InMemory *InMemoryStore `json:"InMemory,omitempty"`
	DbServer *DbServerStore `json:"DbServer,omitempty"`
}

type InMemoryStore struct {
	Alias    string `json:"alias"`
	MaxItems int    `json:"max_items"`
}

type DbServerStore struct {
	Alias               string `json:"alias"`
	SrvType              string `json:"srv_type"` // "MariaDB"
	DbName               string `json:"db_name"`
	MaxConns             int    `json:"max_conns"`
	IdleTimeoutSecs      int    `json:"idle_timeout_secs"`
	ConfidentialityPath  string `json:"confidentiality_path"`
}

// RPCConfig is the rpc{} config section: exactly one of Dummy, AMQP, or
// Mock is populated.
type RPCConfig struct {
	Dummy *struct{}  `json:"dummy,omitempty"`
	AMQP  *AMQPConfig `json:"AMQP,omitempty"`
	Mock  *MockRPCConfig `json:"Mock,omitempty"`
}

type AMQPConfig struct {
	Attributes     AMQPAttributes `json:"attributes"`
	Bindings       []string       `json:"bindings"`
	ConfidentialID string         `json:"confidential_id"`
	MaxConnections int            `json:"max_connections"`
}

type AMQPAttributes struct {
	Vhost       string `json:"vhost"`
	MaxChannels int    `json:"max_channels"`
	TimeoutSecs int    `json:"timeout_secs"`
}

type MockRPCConfig struct {
	TestData string `json:"test_data"`
}

// ThirdPartyEntry is one third_parties[] item: either a network-backed
// processor/feed (name/host/port/confidentiality_path) or a file-backed
// mock data source (name/data_src).
type ThirdPartyEntry struct {
	Name                string `json:"name"`
	Host                string `json:"host,omitempty"`
	Port                int    `json:"port,omitempty"`
	ConfidentialityPath string `json:"confidentiality_path,omitempty"`
	DataSrc             string `json:"data_src,omitempty"`
}

type Auth struct {
	KeystoreURL     string `json:"keystore_url"`
	UpdatePeriodMins int   `json:"update_period_mins"`
}

type Confidentiality struct {
	UserSpace *UserSpaceConfidentiality `json:"UserSpace,omitempty"`
}

type UserSpaceConfidentiality struct {
	SysPath string `json:"sys_path"`
}

// Config is the top-level recognized configuration document.
type Config struct {
	Listen          Listen            `json:"listen"`
	Logging         Logging           `json:"logging"`
	DataStore       []DataStoreEntry  `json:"data_store"`
	RPC             RPCConfig         `json:"rpc"`
	ThirdParties    []ThirdPartyEntry `json:"third_parties"`
	Auth            Auth              `json:"auth"`
	Confidentiality Confidentiality   `json:"confidentiality"`
}

// Load resolves CONFIG_FILE_PATH against SYS_BASE_PATH/SERVICE_BASE_PATH
// (whichever is set; SERVICE_BASE_PATH wins) and decodes the JSON file
// found there.
func Load() (*Config, error) {
	base := os.Getenv("SERVICE_BASE_PATH")
	if base == "" {
		base = os.Getenv("SYS_BASE_PATH")
	}
	rel := os.Getenv("CONFIG_FILE_PATH")
	if rel == "" {
		return nil, apperr.New(apperr.InvalidInput, "CONFIG_FILE_PATH not set")
	}
	path := rel
	if base != "" && !filepath.IsAbs(rel) {
		path = filepath.Join(base, rel)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "read config file", err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "decode config file", err)
	}
	return &cfg, nil
}
