// Package config resolves the SCM's runtime configuration from CLI
// flags, falling back to environment variables and finally to built-in
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config is the fully resolved set of runtime settings.
type Config struct {
	UPSFHost string
	UPSFPort int

	ConfigFile string

	DefaultShardName             string
	DefaultRequiredQuality       int
	DefaultRequiredServiceGroups []string

	RegistrationInterval time.Duration
	UPSFAutoRegister     bool

	LogLevel string

	// MetricsAddr is empty when the metrics server is disabled.
	MetricsAddr string
	// UPSFDev selects the in-memory Gateway instead of dialing a real UPSF.
	UPSFDev bool
}

// validLogLevels mirrors the five levels the source tool accepted.
var validLogLevels = map[string]bool{
	"critical": true,
	"error":    true,
	"warning":  true,
	"info":     true,
	"debug":    true,
}

// ParseBool maps a string to a boolean the way the original tool's
// str2bool helper does: the case-insensitive set {true,1,t,y,yes} is
// true, everything else is false. There is no error return: an
// unrecognized value is simply "not true", matching that behavior
// exactly rather than rejecting it.
func ParseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "t", "y", "yes":
		return true
	default:
		return false
	}
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Flags binds the CLI flag set. Call Resolve afterwards (post
// pflag.Parse) to obtain the final Config honoring CLI > env > default
// precedence.
type Flags struct {
	upsfHost                     *string
	upsfPort                     *int
	configFile                   *string
	defaultShardName             *string
	defaultRequiredQuality       *int
	defaultRequiredServiceGroups *string
	registrationInterval         *int
	upsfAutoRegister             *string
	loglevel                     *string
	metricsAddr                  *string
	upsfDev                      *bool
}

// BindFlags registers every SCM flag on fs and returns a handle used to
// resolve the final values once fs has been parsed.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	f.upsfHost = fs.String("upsf-host", envOrDefault("UPSF_HOST", "127.0.0.1"), "UPSF gRPC host")
	f.upsfPort = fs.Int("upsf-port", envInt("UPSF_PORT", 50051), "UPSF gRPC port")
	f.configFile = fs.StringP("config-file", "c", envOrDefault("CONFIG_FILE", "/etc/upsf/policy.yaml"), "policy configuration file")
	f.defaultShardName = fs.String("default-shard-name", envOrDefault("DEFAULT_SHARD_NAME", "default-shard"), "default shard name")
	f.defaultRequiredQuality = fs.Int("default-required-quality", envInt("DEFAULT_REQUIRED_QUALITY", 1000), "default required quality")
	f.defaultRequiredServiceGroups = fs.String("default-required-service-groups", envOrDefault("DEFAULT_REQUIRED_SERVICE_GROUPS", "basic-internet"), "default required service groups (comma-separated)")
	f.registrationInterval = fs.IntP("registration-interval", "i", envInt("REGISTRATION_INTERVAL", 60), "registration interval, seconds")
	f.upsfAutoRegister = fs.StringP("upsf-auto-register", "a", envOrDefault("UPSF_AUTO_REGISTER", "yes"), "enable periodic registration of policy defaults (boolean string)")
	f.loglevel = fs.StringP("loglevel", "l", envOrDefault("LOGLEVEL", "info"), "log level: critical|error|warning|info|debug")
	f.metricsAddr = fs.String("metrics-addr", envOrDefault("METRICS_ADDR", ""), "address to serve Prometheus metrics on, empty disables it")
	f.upsfDev = fs.Bool("upsf-dev", ParseBool(envOrDefault("UPSF_DEV", "false")), "use an in-memory UPSF gateway instead of dialing upsf-host:upsf-port")
	return f
}

// Resolve validates and assembles the final Config after fs.Parse has run.
func (f *Flags) Resolve() (Config, error) {
	if !validLogLevels[strings.ToLower(*f.loglevel)] {
		return Config{}, fmt.Errorf("config: invalid --loglevel %q, must be one of critical|error|warning|info|debug", *f.loglevel)
	}

	var groups []string
	for _, g := range strings.Split(*f.defaultRequiredServiceGroups, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}

	return Config{
		UPSFHost:                     *f.upsfHost,
		UPSFPort:                     *f.upsfPort,
		ConfigFile:                   *f.configFile,
		DefaultShardName:             *f.defaultShardName,
		DefaultRequiredQuality:       *f.defaultRequiredQuality,
		DefaultRequiredServiceGroups: groups,
		RegistrationInterval:         time.Duration(*f.registrationInterval) * time.Second,
		UPSFAutoRegister:             ParseBool(*f.upsfAutoRegister),
		LogLevel:                     strings.ToLower(*f.loglevel),
		MetricsAddr:                  *f.metricsAddr,
		UPSFDev:                      *f.upsfDev,
	}, nil
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
