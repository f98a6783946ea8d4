package casegen

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// =========== DecodeCases ===========

func TestDecodeCases(t *testing.T) {
	cases, err := DecodeCases([]byte(` [{"patient_name":"A"},{"patient_name":"B"}] `))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cases) != 2 || cases[1].Label() != "B" {
		t.Errorf("unexpected cases: %v", cases)
	}
}

func TestDecodeCases_Errors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{`{"patient_name":"A"}`, ErrNotArray},
		{``, ErrNotArray},
		{`[1, 2]`, ErrNotArray},
		{`[null]`, ErrNotArray},
		{`[{"a":`, ErrNotArray},
		{`[]`, ErrEmptyBatch},
	}
	for _, tt := range tests {
		if _, err := DecodeCases([]byte(tt.input)); !errors.Is(err, tt.want) {
			t.Errorf("DecodeCases(%q): expected %v, got %v", tt.input, tt.want, err)
		}
	}
}

func TestOutputKey(t *testing.T) {
	if got := OutputKey("exam_result", "maria"); got != "exam_result/exam_result_maria.json" {
		t.Errorf("OutputKey = %q", got)
	}
}

// =========== Runner ===========

func newTestRunner(store blobstore.Store) *Runner {
	return NewRunner(store, zerolog.Nop(), 2)
}

func TestRunner_WritesFiles(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	second := with(prescriptionRecord(), map[string]interface{}{"output_dir": "joao", "patient_name": "Joao"})

	report, err := newTestRunner(store).Run(context.Background(), NewPrescriptionBuilder(testOptions()),
		[]Record{prescriptionRecord(), second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OK() {
		t.Fatalf("unexpected failures: %+v", report.Failed)
	}

	want := []string{
		"medical_prescription/medical_prescription_maria.json",
		"medical_prescription/medical_prescription_joao.json",
	}
	if !reflect.DeepEqual(report.Generated, want) {
		t.Errorf("Generated = %v, want %v", report.Generated, want)
	}

	data, _, err := store.Get(context.Background(), want[1])
	if err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
	if !strings.Contains(string(data), "\n    \"entry\": [") {
		t.Error("expected four-space indented output")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("stored file is not JSON: %v", err)
	}
	if doc["id"] != "bundle-2" {
		t.Errorf("second file id = %v, want bundle-2", doc["id"])
	}
}

// slowStore delays every Put whose payload contains match.
type slowStore struct {
	blobstore.Store
	match string
	delay time.Duration
}

func (s slowStore) Put(ctx context.Context, key string, content []byte, contentType string) (*blobstore.ObjectInfo, error) {
	if strings.Contains(string(content), s.match) {
		time.Sleep(s.delay)
	}
	return s.Store.Put(ctx, key, content, contentType)
}

func TestRunner_SharedOutputNameKeepsLaterCase(t *testing.T) {
	mem := blobstore.NewInMemoryStore()
	store := slowStore{Store: mem, match: `"bundle-1"`, delay: 50 * time.Millisecond}
	second := with(prescriptionRecord(), map[string]interface{}{"patient_name": "Joao"})
	other := with(prescriptionRecord(), map[string]interface{}{"output_dir": "ana"})

	report, err := NewRunner(store, zerolog.Nop(), 3).Run(context.Background(), NewPrescriptionBuilder(testOptions()),
		[]Record{prescriptionRecord(), second, other})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OK() {
		t.Fatalf("unexpected failures: %+v", report.Failed)
	}

	want := []string{
		"medical_prescription/medical_prescription_maria.json",
		"medical_prescription/medical_prescription_ana.json",
	}
	if !reflect.DeepEqual(report.Generated, want) {
		t.Errorf("Generated = %v, want %v", report.Generated, want)
	}

	data, _, err := mem.Get(context.Background(), want[0])
	if err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("stored file is not JSON: %v", err)
	}
	if doc["id"] != "bundle-2" {
		t.Errorf("surviving file id = %v, want bundle-2", doc["id"])
	}
}

func TestGroupByOutput(t *testing.T) {
	noName := prescriptionRecord()
	delete(noName, "output_dir")
	cases := []Record{
		prescriptionRecord(),
		with(prescriptionRecord(), map[string]interface{}{"output_dir": "ana"}),
		noName,
		prescriptionRecord(),
	}

	got := groupByOutput(DocMedicalPrescription, cases)
	want := [][]int{{0, 3}, {1}, {2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groupByOutput = %v, want %v", got, want)
	}
}

func TestRunner_ContinuesAfterFailure(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	broken := appointmentRecord()
	delete(broken, "slot_specialty")
	broken["output_dir"] = "broken"
	good := with(appointmentRecord(), map[string]interface{}{"output_dir": "good"})

	report, err := newTestRunner(store).Run(context.Background(), NewAppointmentBuilder(testOptions()),
		[]Record{broken, good})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failed))
	}
	f := report.Failed[0]
	if f.Index != 1 || f.Label != "Maria Silva" {
		t.Errorf("failure = %+v", f)
	}
	if !strings.Contains(f.Error, "slot_specialty") {
		t.Errorf("failure error %q does not name the key", f.Error)
	}

	if !reflect.DeepEqual(report.Generated, []string{"appointment/appointment_good.json"}) {
		t.Errorf("Generated = %v", report.Generated)
	}
	items, _ := store.List(context.Background(), "")
	if len(items) != 1 {
		t.Errorf("expected exactly one stored file, got %d", len(items))
	}
}

func TestRunner_EmptyBatch(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	report, err := newTestRunner(store).Run(context.Background(), NewExamRequestBuilder(testOptions()), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Generated) != 0 || len(report.Failed) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	items, _ := store.List(context.Background(), "")
	if len(items) != 0 {
		t.Errorf("expected no files, got %d", len(items))
	}
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(blobstore.NewInMemoryStore()).Run(ctx, NewExamResultBuilder(testOptions()),
		[]Record{examResultRecord()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// danglingBuilder emits a bundle whose header focuses a resource it never adds.
type danglingBuilder struct{}

func (danglingBuilder) DocumentType() string { return "dangling" }

func (danglingBuilder) Build(_ Record, index int) (*fhir.Bundle, error) {
	h := fhir.NewMessageHeader(caseIDs(index).of("msg"))
	h.EventCode = "test"
	h.AddFocus("Encounter/missing")
	return fhir.NewMessageBundle(caseIDs(index).of("bundle"), nil).AddEntry(h), nil
}

func TestRunner_RejectsDanglingReferences(t *testing.T) {
	store := blobstore.NewInMemoryStore()
	report, err := newTestRunner(store).Run(context.Background(), danglingBuilder{}, []Record{baseRecord()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected dangling case to fail, got %+v", report)
	}
	items, _ := store.List(context.Background(), "")
	if len(items) != 0 {
		t.Errorf("expected no stored files, got %d", len(items))
	}

	outcome := report.Outcome()
	if !outcome.HasErrors() {
		t.Fatal("expected error outcome")
	}
	issue := outcome.Issue[0]
	if issue.Code != fhir.IssueTypeNotFound {
		t.Errorf("issue code = %q, want %q", issue.Code, fhir.IssueTypeNotFound)
	}
	if len(issue.Expression) != 1 || issue.Expression[0] != "focus[0].reference" {
		t.Errorf("issue expression = %v", issue.Expression)
	}
}

func TestReport_OutcomeMissingFields(t *testing.T) {
	r := prescriptionRecord()
	delete(r, "composition_date")

	report, err := newTestRunner(blobstore.NewInMemoryStore()).Run(context.Background(),
		NewPrescriptionBuilder(testOptions()), []Record{r})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := report.Outcome()
	if len(outcome.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(outcome.Issue))
	}
	issue := outcome.Issue[0]
	if issue.Code != fhir.IssueTypeRequired {
		t.Errorf("issue code = %q, want required", issue.Code)
	}
	if issue.Diagnostics != "case 1 (Maria Silva): composition_date is required" {
		t.Errorf("diagnostics = %q", issue.Diagnostics)
	}
}

func TestReport_OutcomeSuccess(t *testing.T) {
	report := Report{DocumentType: DocExamRequest, Generated: []string{"a", "b"}}
	outcome := report.Outcome()
	if outcome.HasErrors() {
		t.Error("expected no errors")
	}
	if outcome.Issue[0].Diagnostics != "2 exam_request cases generated" {
		t.Errorf("diagnostics = %q", outcome.Issue[0].Diagnostics)
	}
}

func TestRunner_FileStoreLayout(t *testing.T) {
	store := blobstore.NewFileStore(t.TempDir())
	report, err := newTestRunner(store).Run(context.Background(), NewExamRequestBuilder(testOptions()),
		[]Record{examRequestRecord()})
	if err != nil || !report.OK() {
		t.Fatalf("unexpected result: %v %+v", err, report.Failed)
	}

	items, err := store.List(context.Background(), "exam_request/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Key != "exam_request/exam_request_maria.json" {
		t.Errorf("stored items = %+v", items)
	}
}

func TestCaseFailure_Err(t *testing.T) {
	cause := errors.New("store offline")
	f := CaseFailure{Index: 2, Label: "Joao", Error: cause.Error(), err: cause}

	var caseErr *CaseError
	if !errors.As(f.Err(), &caseErr) {
		t.Fatal("expected *CaseError")
	}
	if caseErr.Index != 2 || !errors.Is(f.Err(), cause) {
		t.Errorf("unexpected case error %v", caseErr)
	}
}
