package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BundleTypeMessage is the only Bundle type the generator produces.
const BundleTypeMessage = "message"

var (
	ErrEmptyBundle       = errors.New("bundle has no entries")
	ErrFirstNotHeader    = errors.New("first bundle entry must be a MessageHeader")
	ErrMissingFocus      = errors.New("MessageHeader has no focus")
	ErrDuplicateFullURL  = errors.New("duplicate entry fullUrl")
	ErrUnrenderableEntry = errors.New("entry resource cannot be rendered as JSON")
)

// BundleEntry pairs a resource locator with its rendered fragment.
type BundleEntry struct {
	FullURL  string                 `json:"fullUrl"`
	Resource map[string]interface{} `json:"resource"`
}

// Bundle is the message envelope for one generated case. Entries are kept in
// insertion order; by convention the MessageHeader comes first, the primary
// clinical resources next and the administrative resources last.
type Bundle struct {
	Base
	Type string

	entries []BundleEntry
	clock   func() time.Time
}

// NewMessageBundle creates an empty message Bundle. clock is read each time
// the Bundle is rendered; nil means time.Now.
func NewMessageBundle(id string, clock func() time.Time) *Bundle {
	if clock == nil {
		clock = time.Now
	}
	return &Bundle{
		Base:  NewBase("Bundle", id),
		Type:  BundleTypeMessage,
		clock: clock,
	}
}

// AddEntry renders each resource and appends it with its locator as fullUrl.
func (b *Bundle) AddEntry(resources ...Resource) *Bundle {
	for _, r := range resources {
		b.entries = append(b.entries, BundleEntry{
			FullURL:  r.Locator(),
			Resource: r.ToFHIR(),
		})
	}
	return b
}

// Entries returns a deep copy of the entry list.
func (b *Bundle) Entries() []BundleEntry {
	out := make([]BundleEntry, len(b.entries))
	for i, e := range b.entries {
		out[i] = BundleEntry{FullURL: e.FullURL, Resource: CloneFragment(e.Resource)}
	}
	return out
}

// Len returns the number of entries.
func (b *Bundle) Len() int { return len(b.entries) }

func (b *Bundle) ToFHIR() map[string]interface{} {
	result := b.Base.ToFHIR()
	result["type"] = b.Type
	result["timestamp"] = b.clock().Format(time.RFC3339)
	result["entry"] = b.Entries()
	return result
}

// DanglingReferenceError reports a reference inside an entry that does not
// match the fullUrl of any entry in the same Bundle.
type DanglingReferenceError struct {
	Entry     string
	Path      string
	Reference string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s: %s references %q which is not in the bundle", e.Entry, e.Path, e.Reference)
}

// Validate checks the structural invariants of a message Bundle: the first
// entry is a MessageHeader with at least one focus, fullUrls are unique, and
// every reference anywhere in any entry resolves to an entry of this Bundle.
// All dangling references are reported, joined into one error.
func (b *Bundle) Validate() error {
	if len(b.entries) == 0 {
		return ErrEmptyBundle
	}

	normalized := make([]map[string]interface{}, len(b.entries))
	fullURLs := make(map[string]bool, len(b.entries))
	for i, e := range b.entries {
		m, ok := toMap(e.Resource)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnrenderableEntry, e.FullURL)
		}
		normalized[i] = m
		if fullURLs[e.FullURL] {
			return fmt.Errorf("%w: %s", ErrDuplicateFullURL, e.FullURL)
		}
		fullURLs[e.FullURL] = true
	}

	header := normalized[0]
	if rt, _ := header["resourceType"].(string); rt != "MessageHeader" {
		return fmt.Errorf("%w, got %q", ErrFirstNotHeader, rt)
	}
	if focus, _ := header["focus"].([]interface{}); len(focus) == 0 {
		return ErrMissingFocus
	}

	var errs []error
	for i, m := range normalized {
		for _, hit := range collectReferences(m, "") {
			if !fullURLs[hit.value] {
				errs = append(errs, &DanglingReferenceError{
					Entry:     b.entries[i].FullURL,
					Path:      hit.path,
					Reference: hit.value,
				})
			}
		}
	}
	return errors.Join(errs...)
}

// DanglingReferences extracts the DanglingReferenceErrors wrapped in err.
func DanglingReferences(err error) []*DanglingReferenceError {
	if err == nil {
		return nil
	}
	var out []*DanglingReferenceError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, DanglingReferences(e)...)
		}
		return out
	}
	var d *DanglingReferenceError
	if errors.As(err, &d) {
		out = append(out, d)
	}
	return out
}

type referenceHit struct {
	path  string
	value string
}

// collectReferences walks a JSON-shaped value and returns every string held
// under a "reference" key, with a dotted path to it.
func collectReferences(v interface{}, path string) []referenceHit {
	var hits []referenceHit
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := joinPath(path, k)
			if s, ok := val[k].(string); ok && k == "reference" {
				hits = append(hits, referenceHit{path: child, value: s})
				continue
			}
			hits = append(hits, collectReferences(val[k], child)...)
		}
	case []interface{}:
		for i, item := range val {
			hits = append(hits, collectReferences(item, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}
	return hits
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return strings.Join([]string{parent, key}, ".")
}

// toMap converts a rendered fragment holding typed values into plain JSON
// maps and slices via a JSON round-trip.
func toMap(v interface{}) (map[string]interface{}, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

// Normalize returns the JSON-shaped form of a rendered fragment.
func Normalize(fragment map[string]interface{}) (map[string]interface{}, error) {
	m, ok := toMap(fragment)
	if !ok {
		return nil, ErrUnrenderableEntry
	}
	return m, nil
}
