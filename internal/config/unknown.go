package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"account":   {"login", "password"},
	"session":   {"cache_dir", "store"},
	"network":   {"connect_timeout", "request_timeout", "transfer_timeout", "user_agent", "max_auth_retries"},
	"endpoints": {"api_url", "auth_url", "root_url", "domain"},
	"transfers": {"parallel_uploads", "verify_hash", "max_file_size"},
	"logging":   {"log_level", "log_format"},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates have the same distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown table and its keys are all undecoded; report each message once.
	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key, md.Type(key...) == "Table")
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key, isTable bool) error {
	if len(key) == 1 && !isTable {
		// A bare top-level key usually belongs in a section.
		for section, keys := range knownKeys {
			if slices.Contains(keys, key[0]) {
				return fmt.Errorf("unknown config key %q: did you mean [%s] %s?", key[0], section, key[0])
			}
		}

		return suggest(fmt.Sprintf("unknown config key %q", key[0]), key[0], knownSections)
	}

	section, leaf := key[0], key[len(key)-1]

	keys, ok := knownKeys[section]
	if !ok || len(key) == 1 {
		return suggest(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	return suggest(fmt.Sprintf("unknown config key %q in [%s]", leaf, section), leaf, keys)
}

func suggest(msg, unknown string, candidates []string) error {
	if s := closestMatch(unknown, candidates); s != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
