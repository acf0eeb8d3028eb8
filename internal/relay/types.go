// Package relay defines the types shared by the workers, the caller and their
// supporting infrastructure.
package relay

import (
	"net/http"
	"time"
)

// Worker names, used as metric labels, logger names and notification fields.
const (
	WorkerWeather = "weather"
	WorkerFacts   = "facts"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ResultEvent announces that a worker wrote its result slot.
type ResultEvent struct {
	Worker    string    `json:"worker"`
	Request   string    `json:"request"`
	WrittenAt time.Time `json:"written_at"`
}
