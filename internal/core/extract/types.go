package extract

import "errors"

// ErrEmptyContent is returned when a page rendered but yielded no text.
var ErrEmptyContent = errors.New("no content extracted from page")

// Page is the text view of a rendered URL.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}
