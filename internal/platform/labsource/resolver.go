package labsource

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownFile is returned for file names with no report mapping.
var ErrUnknownFile = errors.New("no report is mapped to this file name")

// DefaultFileMap is the mapping used when none is configured.
const DefaultFileMap = "medical1.pdf=1,medical2.pdf=2,medical3.pdf=3"

// Resolver maps uploaded file names to report numbers. Lookups use the base
// name of the file and are exact.
type Resolver struct {
	numbers map[string]int
}

// NewResolver returns a Resolver over a copy of m.
func NewResolver(m map[string]int) *Resolver {
	numbers := make(map[string]int, len(m))
	for k, v := range m {
		numbers[k] = v
	}
	return &Resolver{numbers: numbers}
}

// ParseFileMap parses "name=number" pairs separated by commas.
func ParseFileMap(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, num, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("file map entry %q: want name=number", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("file map entry %q: report number must be a positive integer", pair)
		}
		out[name] = n
	}
	return out, nil
}

// Resolve returns the report number for fileName.
func (r *Resolver) Resolve(fileName string) (int, error) {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if n, ok := r.numbers[base]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFile, base)
}

// Names lists the mapped file names in sorted order.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.numbers))
	for k := range r.numbers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
