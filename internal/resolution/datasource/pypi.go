package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/tidwall/gjson"
)

const DefaultPyPIURL = "https://pypi.org"

// PyPIAPIClient reads release metadata from the PyPI JSON API.
type PyPIAPIClient struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.Mutex
	releases map[string][]string
	requires map[string][]string
}

func NewPyPIAPIClient(baseURL string, hc *http.Client) *PyPIAPIClient {
	if baseURL == "" {
		baseURL = DefaultPyPIURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}

	return &PyPIAPIClient{
		baseURL:    baseURL,
		httpClient: hc,
		releases:   make(map[string][]string),
		requires:   make(map[string][]string),
	}
}

// Versions lists the versions of a project that have at least one file
// which has not been yanked.
func (c *PyPIAPIClient) Versions(ctx context.Context, name string) ([]string, error) {
	c.mu.Lock()
	versions, ok := c.releases[name]
	c.mu.Unlock()
	if ok {
		return versions, nil
	}

	data, err := c.get(ctx, "pypi", name, "json")
	if err != nil {
		return nil, err
	}

	versions = []string{}
	data.Get("releases").ForEach(func(key, files gjson.Result) bool {
		for _, f := range files.Array() {
			if !f.Get("yanked").Bool() {
				versions = append(versions, key.String())

				break
			}
		}

		return true
	})

	c.mu.Lock()
	c.releases[name] = versions
	c.mu.Unlock()

	return versions, nil
}

// RequiresDist returns the PEP 508 requirement strings of one release.
func (c *PyPIAPIClient) RequiresDist(ctx context.Context, name, version string) ([]string, error) {
	key := name + "==" + version

	c.mu.Lock()
	reqs, ok := c.requires[key]
	c.mu.Unlock()
	if ok {
		return reqs, nil
	}

	data, err := c.get(ctx, "pypi", name, version, "json")
	if err != nil {
		return nil, err
	}

	reqs = []string{}
	for _, r := range data.Get("info.requires_dist").Array() {
		reqs = append(reqs, r.String())
	}

	c.mu.Lock()
	c.requires[key] = reqs
	c.mu.Unlock()

	return reqs, nil
}

func (c *PyPIAPIClient) get(ctx context.Context, elem ...string) (gjson.Result, error) {
	reqURL, err := url.JoinPath(c.baseURL, elem...)
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := doGet(c.httpClient, req)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("pypi returned invalid json for %s", reqURL)
	}

	return gjson.ParseBytes(body), nil
}
