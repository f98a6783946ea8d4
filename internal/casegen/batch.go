package casegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

var (
	ErrNotArray   = errors.New("case file must contain a JSON array of case objects")
	ErrEmptyBatch = errors.New("case file contains no cases")
)

// DefaultWorkers is the concurrency used when a Runner is given none.
const DefaultWorkers = 4

// DecodeCases parses a batch file: a JSON array of case objects.
func DecodeCases(raw []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var cases []Record
	if err := json.Unmarshal(trimmed, &cases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if len(cases) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, c := range cases {
		if c == nil {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrNotArray, i)
		}
	}
	return cases, nil
}

// OutputKey returns the storage key of a generated message:
// "<docType>/<docType>_<outputName>.json".
func OutputKey(docType, outputName string) string {
	return fmt.Sprintf("%s/%s_%s.json", docType, docType, outputName)
}

// CaseFailure is one case that produced no file.
type CaseFailure struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Error string `json:"error"`

	err error
}

// Err returns the failure as a *CaseError.
func (f CaseFailure) Err() error {
	return &CaseError{Index: f.Index, Label: f.Label, Err: f.err}
}

// Report summarizes a batch run. Generated holds storage keys in case order.
type Report struct {
	DocumentType string        `json:"document_type"`
	Generated    []string      `json:"generated"`
	Failed       []CaseFailure `json:"failed"`
}

// OK reports whether every case was generated.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Outcome renders the report as an OperationOutcome. Missing record fields
// and dangling references get one issue each with their location; other
// failures get a processing issue.
func (r Report) Outcome() *fhir.OperationOutcome {
	b := fhir.NewOutcomeBuilder()
	if r.OK() {
		return b.AddIssue(fhir.IssueSeverityInformation, fhir.IssueTypeInformational,
			fmt.Sprintf("%d %s cases generated", len(r.Generated), r.DocumentType)).Build()
	}

	for _, f := range r.Failed {
		prefix := fmt.Sprintf("case %d (%s): ", f.Index, f.Label)

		var missing *MissingFieldsError
		if errors.As(f.err, &missing) {
			b.AddRequiredFields(prefix, missing.Fields)
			continue
		}
		if dangling := fhir.DanglingReferences(f.err); len(dangling) > 0 {
			b.AddDanglingReferences(prefix, dangling)
			continue
		}
		b.AddIssue(fhir.IssueSeverityError, fhir.IssueTypeProcessing, prefix+f.Error)
	}
	return b.Build()
}

// Runner generates batches and persists each message to a Store.
type Runner struct {
	store   blobstore.Store
	logger  zerolog.Logger
	workers int
}

// NewRunner creates a Runner. workers <= 0 selects DefaultWorkers.
func NewRunner(store blobstore.Store, logger zerolog.Logger, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{store: store, logger: logger, workers: workers}
}

// Run builds, validates and stores every case. A failing case is logged and
// recorded in the Report while the rest of the batch continues; the returned
// error is non-nil only when ctx is canceled. Cases sharing an output name are
// generated in index order by one worker, so the later case's file survives
// and its key is reported once.
func (r *Runner) Run(ctx context.Context, builder Builder, cases []Record) (Report, error) {
	docType := builder.DocumentType()
	report := Report{DocumentType: docType}

	keys := make([]string, len(cases))
	var (
		mu       sync.Mutex
		failures []CaseFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, group := range groupByOutput(docType, cases) {
		group := group
		g.Go(func() error {
			for _, i := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				record := cases[i]
				index := i + 1
				key, err := r.runCase(gctx, builder, record, index)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					label := record.Label()
					r.logger.Error().
						Err(err).
						Str("document_type", docType).
						Int("case", index).
						Str("label", label).
						Msg("case failed")

					mu.Lock()
					failures = append(failures, CaseFailure{
						Index: index,
						Label: label,
						Error: err.Error(),
						err:   err,
					})
					mu.Unlock()
					continue
				}

				keys[i] = key
				r.logger.Info().
					Str("document_type", docType).
					Int("case", index).
					Str("label", record.Label()).
					Str("key", key).
					Msg("message generated")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		if k == "" {
			continue
		}
		if seen[k] {
			r.logger.Warn().
				Str("document_type", docType).
				Int("case", i+1).
				Str("key", k).
				Msg("output name reused, earlier file overwritten")
			continue
		}
		seen[k] = true
		report.Generated = append(report.Generated, k)
	}
	sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
	report.Failed = failures

	r.logger.Info().
		Str("document_type", docType).
		Int("generated", len(report.Generated)).
		Int("failed", len(report.Failed)).
		Msg("batch complete")
	return report, nil
}

// groupByOutput partitions case indexes by storage key, in order of first
// appearance. A case whose output name cannot be decoded forms its own group.
func groupByOutput(docType string, cases []Record) [][]int {
	var groups [][]int
	byKey := make(map[string]int)
	for i, record := range cases {
		outputName, err := decodeOutputName(record)
		if err != nil {
			groups = append(groups, []int{i})
			continue
		}
		key := OutputKey(docType, outputName)
		if g, ok := byKey[key]; ok {
			groups[g] = append(groups[g], i)
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, []int{i})
	}
	return groups
}

func (r *Runner) runCase(ctx context.Context, builder Builder, record Record, index int) (string, error) {
	bundle, err := builder.Build(record, index)
	if err != nil {
		return "", err
	}
	outputName, err := decodeOutputName(record)
	if err != nil {
		return "", err
	}
	if err := bundle.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(bundle.ToFHIR(), "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding bundle: %w", err)
	}

	key := OutputKey(builder.DocumentType(), outputName)
	if _, err := r.store.Put(ctx, key, data, blobstore.ContentTypeFHIRJSON); err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}
	return key, nil
}

// decodeOutputName reads the output_dir key. Builders registered from outside
// the package need not decode it themselves.
func decodeOutputName(record Record) (string, error) {
	var f struct {
		OutputDir string `mapstructure:"output_dir"`
	}
	if err := decodeRecord(record, &f); err != nil {
		return "", err
	}
	return f.OutputDir, nil
}
