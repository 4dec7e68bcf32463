// Package datasource fetches package metadata from the registries the
// range resolvers consult.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"
)

// NpmRegistryAPIClient reads packuments from npm registries, caching each
// package's details for the lifetime of the client.
type NpmRegistryAPIClient struct {
	// Registries from the npmrc config. Only written when the client is
	// created, so not covered by the mutex.
	registries NpmRegistries
	httpClient *http.Client

	mu      sync.Mutex
	details map[string]NpmPackageDetails
}

// NpmPackageDetails is the part of a packument the resolver needs.
type NpmPackageDetails struct {
	Versions map[string]NpmDependencies
	Tags     map[string]string
}

// NpmDependencies are the requirements of one published version.
type NpmDependencies struct {
	Dependencies         map[string]string
	OptionalDependencies map[string]string
}

// NewNpmRegistryAPIClient builds a client from the npmrc files visible from
// workdir. registryURL, if set, replaces the default registry.
func NewNpmRegistryAPIClient(workdir, registryURL string, hc *http.Client) (*NpmRegistryAPIClient, error) {
	npmrc, err := LoadNpmrc(workdir)
	if err != nil {
		return nil, fmt.Errorf("loading npmrc: %w", err)
	}

	registries, err := ParseNpmRegistries(npmrc, registryURL)
	if err != nil {
		return nil, err
	}

	return NewNpmRegistryAPIClientWithRegistries(registries, hc), nil
}

func NewNpmRegistryAPIClientWithRegistries(registries NpmRegistries, hc *http.Client) *NpmRegistryAPIClient {
	if hc == nil {
		hc = http.DefaultClient
	}

	return &NpmRegistryAPIClient{
		registries: registries,
		httpClient: hc,
		details:    make(map[string]NpmPackageDetails),
	}
}

// Package returns the published versions and dist-tags of pkg.
func (c *NpmRegistryAPIClient) Package(ctx context.Context, pkg string) (NpmPackageDetails, error) {
	c.mu.Lock()
	details, ok := c.details[pkg]
	c.mu.Unlock()
	if ok {
		return details, nil
	}

	data, err := c.get(ctx, pkg)
	if err != nil {
		return NpmPackageDetails{}, err
	}

	versions := make(map[string]NpmDependencies)
	for v, vdata := range data.Get("versions").Map() {
		versions[v] = NpmDependencies{
			Dependencies:         jsonToStringMap(vdata.Get("dependencies")),
			OptionalDependencies: jsonToStringMap(vdata.Get("optionalDependencies")),
		}
	}
	details = NpmPackageDetails{
		Versions: versions,
		Tags:     jsonToStringMap(data.Get("dist-tags")),
	}

	c.mu.Lock()
	c.details[pkg] = details
	c.mu.Unlock()

	return details, nil
}

func (c *NpmRegistryAPIClient) get(ctx context.Context, pkg string) (gjson.Result, error) {
	req, err := c.registries.BuildRequest(ctx, pkg)
	if err != nil {
		return gjson.Result{}, err
	}

	body, err := doGet(c.httpClient, req)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("npm registry returned invalid json for %s", pkg)
	}

	return gjson.ParseBytes(body), nil
}

// StatusError is returned when a registry answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

func doGet(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return io.ReadAll(resp.Body)
}

func jsonToStringMap(v gjson.Result) map[string]string {
	mp := v.Map()
	if len(mp) == 0 {
		return nil
	}
	strs := make(map[string]string, len(mp))
	for k, s := range mp {
		strs[k] = s.String()
	}

	return strs
}
