// Package deviceid identifies the software or hardware behind a
// transmission from its AX.25 destination callsign (tocall) or its
// MIC-E comment suffix, against the aprs-deviceid style database named
// in §4.12.
package deviceid

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Info describes one identified device or client.
type Info struct {
	Vendor   string
	Model    string
	Class    string
	OS       string
	Features []string
}

func (i Info) String() string {
	switch {
	case i.Vendor != "" && i.Model != "":
		return i.Vendor + " " + i.Model
	case i.Model != "":
		return i.Model
	default:
		return "Unknown"
	}
}

type tocallEntry struct {
	Tocall   string   `yaml:"tocall"`
	Vendor   string   `yaml:"vendor"`
	Model    string   `yaml:"model"`
	Class    string   `yaml:"class"`
	OS       string   `yaml:"os"`
	Features []string `yaml:"features"`
}

type miceEntry struct {
	Suffix   string   `yaml:"suffix"`
	Vendor   string   `yaml:"vendor"`
	Model    string   `yaml:"model"`
	Class    string   `yaml:"class"`
	OS       string   `yaml:"os"`
	Features []string `yaml:"features"`
}

type miceLegacyEntry struct {
	Prefix   string   `yaml:"prefix"`
	Suffix   string   `yaml:"suffix"`
	Vendor   string   `yaml:"vendor"`
	Model    string   `yaml:"model"`
	Class    string   `yaml:"class"`
	OS       string   `yaml:"os"`
	Features []string `yaml:"features"`
}

type classEntry struct {
	Class       string `yaml:"class"`
	Shown       string `yaml:"shown"`
	Description string `yaml:"description"`
}

type database struct {
	Tocalls    []tocallEntry     `yaml:"tocalls"`
	Mice       []miceEntry       `yaml:"mice"`
	MiceLegacy []miceLegacyEntry `yaml:"micelegacy"`
	Classes    []classEntry      `yaml:"classes"`
}

// Database is a loaded device-identification table, safe for concurrent
// lookups.
type Database struct {
	mu      sync.RWMutex
	tocalls []tocallEntry
	mice    []miceEntry
	legacy  []miceLegacyEntry
	classes map[string]classEntry
}

// Load parses a tocalls.yaml database from path.
func Load(path string) (*Database, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deviceid: read %s: %w", path, err)
	}
	var db database
	if err := yaml.Unmarshal(b, &db); err != nil {
		return nil, fmt.Errorf("deviceid: parse %s: %w", path, err)
	}
	classes := make(map[string]classEntry, len(db.Classes))
	for _, c := range db.Classes {
		classes[c.Class] = c
	}
	return &Database{tocalls: db.Tocalls, mice: db.Mice, legacy: db.MiceLegacy, classes: classes}, nil
}

// Empty returns a Database with no entries, used before Load runs or
// when no database file is configured; every lookup returns the zero
// Info.
func Empty() *Database {
	return &Database{classes: map[string]classEntry{}}
}

// matchTocall implements the pattern language of §4.12: `?` matches any
// one character, `n` matches one digit, `*` matches the remaining
// characters.
func matchTocall(pattern, tocall string) bool {
	if pattern == tocall {
		return true
	}
	i, j := 0, 0
	for i < len(pattern) && j < len(tocall) {
		switch pattern[i] {
		case '?':
			i++
			j++
		case 'n':
			if tocall[j] < '0' || tocall[j] > '9' {
				return false
			}
			i++
			j++
		case '*':
			return true
		default:
			if pattern[i] != tocall[j] {
				return false
			}
			i++
			j++
		}
	}
	if i == len(pattern) && j == len(tocall) {
		return true
	}
	return i < len(pattern) && pattern[i:] == "*"
}

func matchQuality(pattern string) int {
	q := 0
	for _, c := range pattern {
		if c != '?' && c != '*' && c != 'n' {
			q++
		}
	}
	return q
}

// IdentifyByTocall matches destination (with any SSID stripped) against
// the tocall table, preferring the longest non-wildcard match.
func (d *Database) IdentifyByTocall(destination string) Info {
	if d == nil {
		return Info{}
	}
	destCall := strings.ToUpper(destination)
	if idx := strings.IndexByte(destCall, '-'); idx >= 0 {
		destCall = destCall[:idx]
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range d.tocalls {
		p := strings.ToUpper(e.Tocall)
		if !strings.ContainsAny(p, "?*") && !strings.Contains(strings.ToLower(p), "n") && p == destCall {
			return entryInfo(e.Vendor, e.Model, e.Class, e.OS, e.Features)
		}
	}

	bestQuality := -1
	var best tocallEntry
	found := false
	for _, e := range d.tocalls {
		// Upper-case everything except the lowercase `n` digit wildcard.
		p := strings.Map(func(r rune) rune {
			if r == 'n' {
				return r
			}
			return unicode.ToUpper(r)
		}, e.Tocall)
		if matchTocall(p, destCall) {
			if q := matchQuality(p); q > bestQuality {
				bestQuality = q
				best = e
				found = true
			}
		}
	}
	if found {
		return entryInfo(best.Vendor, best.Model, best.Class, best.OS, best.Features)
	}
	return Info{}
}

// IdentifyByMicE matches a MIC-E comment's trailing suffix (new-style,
// 2 chars) or its prefix+suffix pair (legacy Kenwood encoding).
func (d *Database) IdentifyByMicE(comment string) Info {
	if d == nil || len(comment) < 2 {
		return Info{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	suffix := comment[len(comment)-2:]
	for _, e := range d.mice {
		if e.Suffix == suffix {
			return entryInfo(e.Vendor, e.Model, e.Class, e.OS, e.Features)
		}
	}

	prefix := string(comment[0])
	lastChar := string(comment[len(comment)-1])
	for _, e := range d.legacy {
		if e.Prefix == prefix && e.Suffix == lastChar {
			return entryInfo(e.Vendor, e.Model, e.Class, e.OS, e.Features)
		}
	}
	return Info{}
}

// ClassDescription returns the human-readable name for a device class
// (e.g. "ht" -> "Handheld Radio"), or the class identifier itself if
// unknown.
func (d *Database) ClassDescription(class string) string {
	if d == nil {
		return class
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.classes[class]; ok && c.Shown != "" {
		return c.Shown
	}
	return class
}

func entryInfo(vendor, model, class, os string, features []string) Info {
	return Info{Vendor: vendor, Model: model, Class: class, OS: os, Features: features}
}

// global is the process-wide database used by the package-level
// convenience functions the APRS decoder calls; Configure installs it
// at startup.
var global = Empty()

// Configure installs db as the process-wide device database.
func Configure(db *Database) { global = db }

// IdentifyByTocall looks a tocall up in the process-wide database and
// renders it, or "" if unidentified.
func IdentifyByTocall(destination string) string {
	info := global.IdentifyByTocall(destination)
	if info.Model == "" && info.Vendor == "" {
		return ""
	}
	return info.String()
}

// IdentifyMicE looks a MIC-E comment suffix up in the process-wide
// database and renders it, or "" if unidentified.
func IdentifyMicE(comment string) string {
	info := global.IdentifyByMicE(comment)
	if info.Model == "" && info.Vendor == "" {
		return ""
	}
	return info.String()
}
