// Package policy parses the declarative default Session Contexts out of
// the UPSF configuration YAML file.
package policy

import (
	"os"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"
)

// Entry is one declared default Session Context, or a template for a
// family of them via Services.
type Entry struct {
	Name                  string    `json:"name"`
	CustomerType          string    `json:"customerType,omitempty"`
	CircuitID             string    `json:"circuitId,omitempty"`
	RemoteID              string    `json:"remoteId,omitempty"`
	SourceMACAddress      string    `json:"sourceMacAddress,omitempty"`
	SVLAN                 string    `json:"svlan,omitempty"`
	CVLAN                 string    `json:"cvlan,omitempty"`
	Shard                 string    `json:"shard,omitempty"`
	RequiredServiceGroups []string  `json:"requiredServiceGroups,omitempty"`
	RequiredQuality       int       `json:"requiredQuality,omitempty"`
	Services              []Service `json:"services,omitempty"`
}

// Service is one sub-entry of an Entry's Services list. Any key left
// unset inherits its parent Entry's value.
type Service struct {
	CircuitID             string   `json:"circuitId,omitempty"`
	RemoteID              string   `json:"remoteId,omitempty"`
	SourceMACAddress      string   `json:"sourceMacAddress,omitempty"`
	SVLAN                 string   `json:"svlan,omitempty"`
	CVLAN                 string   `json:"cvlan,omitempty"`
	Shard                 string   `json:"shard,omitempty"`
	RequiredServiceGroups []string `json:"requiredServiceGroups,omitempty"`
	RequiredQuality       int      `json:"requiredQuality,omitempty"`
}

type document struct {
	UPSF struct {
		SessionContexts []rawEntry `json:"sessionContexts"`
	} `json:"upsf"`
}

// rawEntry mirrors Entry but makes Name optional so we can detect and
// warn about entries that omit it, rather than failing YAML decode.
type rawEntry struct {
	Name                  string       `json:"name"`
	CustomerType          string       `json:"customerType"`
	CircuitID             string       `json:"circuitId"`
	RemoteID              string       `json:"remoteId"`
	SourceMACAddress      string       `json:"sourceMacAddress"`
	SVLAN                 string       `json:"svlan"`
	CVLAN                 string       `json:"cvlan"`
	Shard                 string       `json:"shard"`
	RequiredServiceGroups []string     `json:"requiredServiceGroups"`
	RequiredQuality       int          `json:"requiredQuality"`
	Services              []rawService `json:"services"`
}

type rawService struct {
	CircuitID             string   `json:"circuitId"`
	RemoteID              string   `json:"remoteId"`
	SourceMACAddress      string   `json:"sourceMacAddress"`
	SVLAN                 string   `json:"svlan"`
	CVLAN                 string   `json:"cvlan"`
	Shard                 string   `json:"shard"`
	RequiredServiceGroups []string `json:"requiredServiceGroups"`
	RequiredQuality       int      `json:"requiredQuality"`
}

// ParseError is a failure to read or parse the policy file: malformed
// YAML, or a read error other than the file not existing (a missing file
// is not an error). The Policy Loader never treats it as fatal to the
// process.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "policy: failed to parse " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads and parses the policy file at path, expanding each Entry's
// Services sub-list into individual entries. A missing file or an empty
// document is a no-op: Load returns (nil, nil). A malformed document
// returns a *ParseError; the caller is expected to log and continue
// rather than treat this as fatal.
func Load(log logr.Logger, path string) ([]Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ParseError{Path: path, Err: err}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var entries []Entry
	for _, raw := range doc.UPSF.SessionContexts {
		if raw.Name == "" {
			log.Info("parameter not found, ignoring entry", "param", "name")
			continue
		}

		parent := Entry{
			Name:                  raw.Name,
			CustomerType:          defaultCustomerType(raw.CustomerType),
			CircuitID:             raw.CircuitID,
			RemoteID:              raw.RemoteID,
			SourceMACAddress:      raw.SourceMACAddress,
			SVLAN:                 defaultVLAN(raw.SVLAN),
			CVLAN:                 defaultVLAN(raw.CVLAN),
			Shard:                 raw.Shard,
			RequiredServiceGroups: raw.RequiredServiceGroups,
			RequiredQuality:       raw.RequiredQuality,
		}

		if len(raw.Services) == 0 {
			entries = append(entries, parent)
			continue
		}

		for _, svc := range raw.Services {
			child := parent
			child.CircuitID = inheritString(svc.CircuitID, parent.CircuitID)
			child.RemoteID = inheritString(svc.RemoteID, parent.RemoteID)
			child.SourceMACAddress = inheritString(svc.SourceMACAddress, parent.SourceMACAddress)
			child.SVLAN = inheritString(svc.SVLAN, parent.SVLAN)
			child.CVLAN = inheritString(svc.CVLAN, parent.CVLAN)
			child.Shard = inheritString(svc.Shard, parent.Shard)
			if svc.RequiredQuality != 0 {
				child.RequiredQuality = svc.RequiredQuality
			} else {
				child.RequiredQuality = parent.RequiredQuality
			}
			if len(svc.RequiredServiceGroups) > 0 {
				child.RequiredServiceGroups = svc.RequiredServiceGroups
			} else {
				child.RequiredServiceGroups = parent.RequiredServiceGroups
			}
			entries = append(entries, child)
		}
	}

	return entries, nil
}

func inheritString(child, parent string) string {
	if child != "" {
		return child
	}
	return parent
}

func defaultCustomerType(v string) string {
	if v == "" {
		return "residential"
	}
	return v
}

func defaultVLAN(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
