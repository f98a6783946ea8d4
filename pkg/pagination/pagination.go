package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultCount = 20
	MaxCount     = 100
)

// Params is the requested window: Count items starting at Offset.
type Params struct {
	Count  int
	Offset int
}

// FromContext reads _count and _offset. A missing or non-positive _count
// selects DefaultCount and larger values are capped at MaxCount.
func FromContext(c echo.Context) Params {
	count, _ := strconv.Atoi(c.QueryParam("_count"))
	if count <= 0 {
		count = DefaultCount
	}
	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	return Params{Count: min(count, MaxCount), Offset: max(offset, 0)}
}

// Window returns the slice bounds of the page within total items.
func (p Params) Window(total int) (start, end int) {
	start = min(p.Offset, total)
	return start, min(start+p.Count, total)
}

// Link is one Bundle.link entry.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Page is one page of a listing.
type Page struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Count  int         `json:"count"`
	Offset int         `json:"offset"`
	Link   []Link      `json:"link"`
}

// NewPage wraps items, the page of a listing served at path, with self
// and, where those pages exist, next and previous links.
func (p Params) NewPage(items interface{}, total int, path string) *Page {
	links := []Link{p.link("self", path, p.Offset)}
	if p.Offset+p.Count < total {
		links = append(links, p.link("next", path, p.Offset+p.Count))
	}
	if p.Offset > 0 {
		links = append(links, p.link("previous", path, max(p.Offset-p.Count, 0)))
	}
	return &Page{Items: items, Total: total, Count: p.Count, Offset: p.Offset, Link: links}
}

func (p Params) link(relation, path string, offset int) Link {
	return Link{Relation: relation, URL: fmt.Sprintf("%s?_offset=%d&_count=%d", path, offset, p.Count)}
}
