/*
==============================================================================
* Filename: config.go
* Description: A quite simple configuration file reader that reads a YAML
*  configuration file and unmarshals it into a struct. This configuration
*  file reader is used to read the session-wide defaults (timeout, log
*  directory, command allowlist) comcom uses when a caller doesn't specify
*  them explicitly.
*
* Author:
*  J.EP J. Enrique Peraza, enrique.peraza@trivium-solutions.com
* Organizations:
*  Trivium Solutions LLC, 9175 Guilford Road, Suite 220, Columbia, MD 21046
==============================================================================
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3" // YAML decoding and encoding

	"github.com/vporton/libcomcom/internal/logger" // Our custom log package.
)

// DefaultPath is where ReadConfig looks when $COMCOM_CONFIG isn't set.
const DefaultPath = "comcom.yaml"

// EnvPath is the environment variable that overrides DefaultPath.
const EnvPath = "COMCOM_CONFIG"

// Config represents the complete YAML configuration structure for a
// Session's defaults.
type Config struct { // Our configuration object
	DefaultTimeout time.Duration `yaml:"default_timeout"` // Used when Run's timeout is 0.
	LogDir         string        `yaml:"log_dir"`         // Decoded only; the logger still takes its directory from $COMCOM_LOG_DIR.
	Allowlist      []string      `yaml:"allowlist"`        // Empty means "no restriction".
	log            logger.Log    // Logger object
} // Config struct

// ------------------------------------ //
// An initializer for the Config struct.
// ------------------------------------ //
func NewConfig(log logger.Log) *Config { // Our initializer for the Config object.
	return &Config{ // Return a new Config object
		DefaultTimeout: -1,  // -1 means infinite, matching Run's convention.
		log:            log, // Initialize the log object
	} // Done initializing the Config object
} // ---------- NewConfig ------------- //

// Allowed reports whether file is permitted to run under this config's
// allowlist. An empty allowlist permits everything.
func (c *Config) Allowed(file string) bool { // ----------- Allowed ----------- //
	if len(c.Allowlist) == 0 { // No restriction configured?
		return true // Yes, everything is allowed.
	} // Done checking for an empty allowlist.
	base := filepath.Base(file) // Compare by basename, like the allowlist entries.
	for _, a := range c.Allowlist {
		if a == file || a == base { // Exact match on either form?
			return true // Yes, it's allowed.
		} // Done checking this entry.
	} // Done checking all entries.
	return false // Not found in the allowlist.
} // ----------- Allowed ------------ //

// ------------------------------------ //
// ReadConfig decodes and loads the YAML configuration file into a Config
// struct. path may be empty, in which case $COMCOM_CONFIG is tried, then
// DefaultPath; a missing file at the default location is not an error, and
// ReadConfig returns NewConfig(log) unchanged.
// ------------------------------------ //
func ReadConfig(path string, log logger.Log) (*Config, error) {
	if path == "" { // Did the caller leave the path unspecified?
		if p := os.Getenv(EnvPath); p != "" { // Yes, is $COMCOM_CONFIG set?
			path = p // Use it.
		} else {
			path = DefaultPath // Fall back to the default filename.
		} // Done resolving the path.
	} // Done checking for an unspecified path.
	absPath, err := filepath.Abs(path) // Get the absolute path
	if err != nil {                    // Could we find the file at absPath?
		log.Err("Could not find file %s: %v", absPath, err)
		return nil, fmt.Errorf("config: resolve path %q: %w", path, err)
	} // Done checking the file path.
	// ---------------------------------- //
	// Verify for the existence of the file. A missing default config is
	// not an error; an explicitly requested one is.
	// ---------------------------------- //
	if _, err := os.Stat(absPath); os.IsNotExist(err) { // Does file exists?
		if path == DefaultPath { // Was this the implicit default?
			return NewConfig(log), nil // Yes, silently fall back to defaults.
		} // Done checking for the implicit default.
		log.Err("File %s does not exist: %v", absPath, err)
		return nil, fmt.Errorf("config: %q does not exist: %w", absPath, err)
	} // Done checking for file existence.
	// ---------------------------------- //
	// Open the YAML file for reading. (ReadFile closes the file when done.)
	// ---------------------------------- //
	data, err := os.ReadFile(absPath) // Read the file
	if err != nil {                  // Could we read the file?
		log.Err("Could not read file %s: %v", absPath, err)
		return nil, fmt.Errorf("config: read %q: %w", absPath, err)
	} // Done with file read err
	// ---------------------------------- //
	// Attempt to unmarshal the YAML data into the Config struct, catching
	// any errors that occur during the unmarshalling process.
	// ---------------------------------- //
	cfg := NewConfig(log) // Start from the defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Err("Could not unmarshal YAML file %s: %v", absPath, err)
		return nil, fmt.Errorf("config: unmarshal %q: %w", absPath, err)
	} // Done unmarshalling the YAML data
	if cfg.DefaultTimeout == 0 { // Did the file explicitly set a zero timeout?
		cfg.DefaultTimeout = -1 // Treat unset the same as "infinite".
	} // Done normalizing the default timeout.
	return cfg, nil // Return the cfg struct and nil error.
} // ----------- ReadConfig ----------- //
