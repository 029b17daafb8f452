package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ServerConfig mirrors akonadiserverrc, read-only at startup.
type ServerConfig struct {
	DisablePreprocessing bool
	EnableCleaner        bool
	SearchManagers       []string
	NamedPipe            string
}

// ConnectionConfig mirrors akonadiconnectionrc, rewritten on every
// startup and removed on clean shutdown so a stale file can never be
// mistaken for a live endpoint.
type ConnectionConfig struct {
	Method   string // "UnixPath" or "NamedPipe"
	UnixPath string
}

// DataLayout resolves the on-disk paths under one data directory.
type DataLayout struct {
	Root string
}

func NewDataLayout(root string) DataLayout { return DataLayout{Root: root} }

func (d DataLayout) AkonadiDir() string        { return filepath.Join(d.Root, "akonadi") }
func (d DataLayout) FileDBDataDir() string     { return filepath.Join(d.AkonadiDir(), "file_db_data") }
func (d DataLayout) SocketPath() string        { return filepath.Join(d.AkonadiDir(), "akonadiserver.socket") }
func (d DataLayout) ServerRCPath() string      { return filepath.Join(d.AkonadiDir(), "akonadiserverrc") }
func (d DataLayout) ConnectionRCPath() string  { return filepath.Join(d.AkonadiDir(), "akonadiconnectionrc") }
func (d DataLayout) DatabasePath() string      { return filepath.Join(d.AkonadiDir(), "akonadi.db") }

// EnsureDirs creates the data and external-payload directories.
func (d DataLayout) EnsureDirs() error {
	if err := os.MkdirAll(d.FileDBDataDir(), 0o700); err != nil {
		return fmt.Errorf("config: create data dirs: %w", err)
	}
	return nil
}

// LoadServerConfig reads akonadiserverrc. A missing file yields
// defaults rather than an error, matching a first-run server with no
// prior configuration.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{EnableCleaner: true}
	doc, err := loadIniFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	if v, ok := doc.section("General").get("DisablePreprocessing"); ok {
		cfg.DisablePreprocessing = parseBool(v)
	}
	if v, ok := doc.section("Cache").get("EnableCleaner"); ok {
		cfg.EnableCleaner = parseBool(v)
	}
	if v, ok := doc.section("Search").get("Manager"); ok && v != "" {
		cfg.SearchManagers = strings.Split(v, ",")
	}
	if v, ok := doc.section("Connection").get("NamedPipe"); ok {
		cfg.NamedPipe = v
	}
	return cfg, nil
}

// SaveServerConfig writes akonadiserverrc in the format
// LoadServerConfig reads.
func SaveServerConfig(path string, cfg *ServerConfig) error {
	doc := newIni()
	doc.section("General").set("DisablePreprocessing", formatBool(cfg.DisablePreprocessing))
	doc.section("Cache").set("EnableCleaner", formatBool(cfg.EnableCleaner))
	doc.section("Search").set("Manager", strings.Join(cfg.SearchManagers, ","))
	if cfg.NamedPipe != "" {
		doc.section("Connection").set("NamedPipe", cfg.NamedPipe)
	}
	return saveIniFile(path, doc)
}

// WriteConnectionConfig (re)writes akonadiconnectionrc at startup.
func WriteConnectionConfig(path string, cfg *ConnectionConfig) error {
	doc := newIni()
	doc.section("Data").set("Method", cfg.Method)
	if cfg.UnixPath != "" {
		doc.section("Data").set("UnixPath", cfg.UnixPath)
	}
	return saveIniFile(path, doc)
}

// RemoveConnectionConfig deletes akonadiconnectionrc on clean shutdown.
func RemoveConnectionConfig(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: remove %s: %w", path, err)
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
