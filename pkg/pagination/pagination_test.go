package pagination

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/fhirmock/messages"+query, nil)
	return FromContext(echo.New().NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Count: DefaultCount, Offset: 0}},
		{"?_count=25&_offset=5", Params{Count: 25, Offset: 5}},
		{"?_count=500", Params{Count: MaxCount, Offset: 0}},
		{"?_count=0&_offset=-3", Params{Count: DefaultCount, Offset: 0}},
		{"?_count=abc&_offset=xyz", Params{Count: DefaultCount, Offset: 0}},
	}
	for _, tt := range tests {
		if got := paramsFor(t, tt.query); got != tt.want {
			t.Errorf("FromContext(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestParams_Window(t *testing.T) {
	tests := []struct {
		p          Params
		total      int
		start, end int
	}{
		{Params{Count: 2, Offset: 0}, 5, 0, 2},
		{Params{Count: 2, Offset: 4}, 5, 4, 5},
		{Params{Count: 2, Offset: 9}, 5, 5, 5},
		{Params{Count: 20, Offset: 0}, 0, 0, 0},
	}
	for _, tt := range tests {
		start, end := tt.p.Window(tt.total)
		if start != tt.start || end != tt.end {
			t.Errorf("%+v.Window(%d) = %d,%d, want %d,%d", tt.p, tt.total, start, end, tt.start, tt.end)
		}
	}
}

func relations(links []Link) []string {
	var out []string
	for _, l := range links {
		out = append(out, l.Relation)
	}
	return out
}

func TestParams_NewPage(t *testing.T) {
	tests := []struct {
		name  string
		p     Params
		total int
		want  []string
	}{
		{"first page", Params{Count: 10, Offset: 0}, 25, []string{"self", "next"}},
		{"middle page", Params{Count: 10, Offset: 10}, 25, []string{"self", "next", "previous"}},
		{"last page", Params{Count: 10, Offset: 20}, 25, []string{"self", "previous"}},
		{"no results", Params{Count: 10, Offset: 0}, 0, []string{"self"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := tt.p.NewPage([]string{}, tt.total, "/fhirmock/messages")
			if got := relations(page.Link); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("relations = %v, want %v", got, tt.want)
			}
			if page.Total != tt.total || page.Count != tt.p.Count || page.Offset != tt.p.Offset {
				t.Errorf("unexpected page fields: %+v", page)
			}
		})
	}
}

func TestParams_NewPage_LinkURLs(t *testing.T) {
	page := Params{Count: 10, Offset: 5}.NewPage(nil, 30, "/fhirmock/messages")

	want := []Link{
		{Relation: "self", URL: "/fhirmock/messages?_offset=5&_count=10"},
		{Relation: "next", URL: "/fhirmock/messages?_offset=15&_count=10"},
		{Relation: "previous", URL: "/fhirmock/messages?_offset=0&_count=10"},
	}
	if !reflect.DeepEqual(page.Link, want) {
		t.Errorf("links = %+v, want %+v", page.Link, want)
	}
}
