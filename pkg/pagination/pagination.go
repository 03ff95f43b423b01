package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Bounds is the default and hard cap applied to a caller-supplied limit.
type Bounds struct {
	Default int
	Max     int
}

var (
	// Directory bounds the patient directory search.
	Directory = Bounds{Default: 20, Max: 50}
	// History bounds consultation history reads.
	History = Bounds{Default: 10, Max: 50}
	// Records bounds cycle and lab result listings.
	Records = Bounds{Default: 50, Max: 200}
)

// Clamp applies b to n. Non-positive values fall back to the default and
// anything above the cap is truncated to it.
func (b Bounds) Clamp(n int) int {
	if n <= 0 {
		return b.Default
	}
	if n > b.Max {
		return b.Max
	}
	return n
}

// Parse converts a raw query value and clamps it. Unparseable input is
// treated like a missing value.
func (b Bounds) Parse(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return b.Default
	}
	return b.Clamp(n)
}

// LimitFromContext reads the "limit" query parameter and clamps it to b.
func LimitFromContext(c echo.Context, b Bounds) int {
	return b.Parse(c.QueryParam("limit"))
}

// Response is the list envelope returned by directory-style endpoints.
type Response struct {
	Data    interface{} `json:"data"`
	Count   int         `json:"count"`
	HasMore bool        `json:"hasMore"`
}

// NewResponse builds a Response. HasMore is a size heuristic: it is true
// whenever the page came back full, which can be a false positive when the
// remaining set is exactly limit rows long.
func NewResponse(data interface{}, count, limit int) *Response {
	return &Response{
		Data:    data,
		Count:   count,
		HasMore: count == limit,
	}
}
