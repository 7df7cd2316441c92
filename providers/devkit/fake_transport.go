package devkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/goliatone/go-credentials/providers"
)

type ResponseScript struct {
	StatusCode  int
	ContentType string
	Body        string
	Err         error
}

// RecordedRequest is a copy of what a strategy sent to the token endpoint.
type RecordedRequest struct {
	Method   string
	URL      string
	Query    url.Values
	Form     url.Values
	Username string
	Password string
	HasBasic bool
}

// ScriptedDoer replays scripted responses in order; once exhausted the last
// script repeats.
type ScriptedDoer struct {
	mu       sync.Mutex
	scripts  []ResponseScript
	requests []RecordedRequest
}

func NewScriptedDoer(scripts ...ResponseScript) *ScriptedDoer {
	return &ScriptedDoer{scripts: append([]ResponseScript(nil), scripts...)}
}

// JSONResponse is a 200 JSON token response.
func JSONResponse(body string) ResponseScript {
	return ResponseScript{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}
}

func (d *ScriptedDoer) Do(req *http.Request) (*http.Response, error) {
	if d == nil {
		return nil, fmt.Errorf("devkit: scripted doer is nil")
	}
	recorded, err := recordRequest(req)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.requests = append(d.requests, recorded)
	index := len(d.requests) - 1
	script := ResponseScript{StatusCode: http.StatusOK, ContentType: "application/json", Body: `{}`}
	if index < len(d.scripts) {
		script = d.scripts[index]
	} else if len(d.scripts) > 0 {
		script = d.scripts[len(d.scripts)-1]
	}
	d.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}
	status := script.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	header := http.Header{}
	if script.ContentType != "" {
		header.Set("Content-Type", script.ContentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(script.Body)),
		Request:    req,
	}, nil
}

func (d *ScriptedDoer) Requests() []RecordedRequest {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RecordedRequest(nil), d.requests...)
}

func recordRequest(req *http.Request) (RecordedRequest, error) {
	if req == nil || req.URL == nil {
		return RecordedRequest{}, fmt.Errorf("devkit: request is required")
	}
	recorded := RecordedRequest{
		Method: req.Method,
		URL:    req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
		Query:  req.URL.Query(),
		Form:   url.Values{},
	}
	recorded.Username, recorded.Password, recorded.HasBasic = req.BasicAuth()
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return RecordedRequest{}, err
		}
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return RecordedRequest{}, err
		}
		recorded.Form = form
	}
	return recorded, nil
}

var _ providers.HTTPDoer = (*ScriptedDoer)(nil)
