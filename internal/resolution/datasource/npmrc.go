package datasource

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/depscan/depscan/internal/cachedregexp"
	"gopkg.in/ini.v1"
)

const DefaultNpmRegistry = "https://registry.npmjs.org"

// LoadNpmrc reads the user and project .npmrc files plus npm_config_*
// environment variables, later sources overriding earlier ones.
// A userconfig key in the project file or environment moves the user file.
func LoadNpmrc(workdir string) (*ini.Section, error) {
	projectFile := ""
	if workdir != "" {
		projectFile, _ = filepath.Abs(filepath.Join(workdir, ".npmrc"))
	}
	envVarOpts, err := envVarNpmrc()
	if err != nil {
		return nil, err
	}

	opts := ini.LoadOptions{
		Loose:              true, // ignore missing files
		KeyValueDelimiters: "=",  // default delimiters are "=:", but npmrc uses : in some keys
	}

	var userFile string
	if projectFile != "" {
		withoutUser, err := ini.LoadSources(opts, projectFile, envVarOpts)
		if err != nil {
			return nil, err
		}
		if withoutUser.Section("").HasKey("userconfig") {
			userFile = os.ExpandEnv(withoutUser.Section("").Key("userconfig").String())
		}
	}
	if userFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userFile = filepath.Join(homeDir, ".npmrc")
		}
	}

	sources := []any{envVarOpts}
	if projectFile != "" {
		sources = []any{projectFile, envVarOpts}
	}
	full, err := ini.LoadSources(opts, userFile, sources...)
	if err != nil {
		return nil, err
	}

	return full.Section(""), nil
}

// envVarNpmrc turns npm_config_* environment variables into ini content.
func envVarNpmrc() ([]byte, error) {
	iniFile := ini.Empty()
	// npm config environment variables are case-insensitive, interpreted in lowercase
	const envPrefix = "npm_config_"
	for _, env := range os.Environ() {
		k, v, _ := strings.Cut(env, "=")
		if s, ok := strings.CutPrefix(strings.ToLower(k), envPrefix); ok {
			if _, err := iniFile.Section("").NewKey(s, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	_, err := iniFile.WriteTo(&buf)

	return buf.Bytes(), err
}

type npmRegistryAuth struct {
	authToken string
	auth      string
	username  string
	password  string
}

func (a *npmRegistryAuth) addAuth(header http.Header) error {
	if a == nil {
		return nil
	}

	switch {
	case a.authToken != "":
		header.Set("Authorization", "Bearer "+a.authToken)
	case a.auth != "":
		header.Set("Authorization", "Basic "+a.auth)
	case a.username != "" && a.password != "":
		// password is stored already base64-encoded
		pass, err := base64.StdEncoding.DecodeString(a.password)
		if err != nil {
			return fmt.Errorf("decoding registry password: %w", err)
		}
		auth := base64.StdEncoding.EncodeToString(append([]byte(a.username+":"), pass...))
		header.Set("Authorization", "Basic "+auth)
	}

	return nil
}

type npmRegistry struct {
	URL  string
	auth *npmRegistryAuth
}

// NpmRegistries maps an @scope (or "" for the default) to its registry.
type NpmRegistries map[string]npmRegistry

// URLFor returns the registry base URL serving pkg.
func (r NpmRegistries) URLFor(pkg string) string {
	return r.forPackage(pkg).URL
}

func (r NpmRegistries) forPackage(pkg string) npmRegistry {
	scope := ""
	if strings.HasPrefix(pkg, "@") {
		scope, _, _ = strings.Cut(pkg, "/")
	}
	if info, ok := r[scope]; ok {
		return info
	}

	return r[""]
}

// BuildRequest creates the request for a packument, authenticated as the
// npmrc configures for the package's registry.
func (r NpmRegistries) BuildRequest(ctx context.Context, pkg string) (*http.Request, error) {
	if pkg == "" {
		return nil, errors.New("no package specified in npm request")
	}
	info := r.forPackage(pkg)

	reqURL, err := url.JoinPath(info.URL, url.PathEscape(pkg))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if err := info.auth.addAuth(req.Header); err != nil {
		return nil, err
	}

	return req, nil
}

// ParseNpmRegistries reads registry and auth settings out of an npmrc.
// defaultURL, when set, replaces the registry the npmrc names as default.
func ParseNpmRegistries(npmrc *ini.Section, defaultURL string) (NpmRegistries, error) {
	infos := make(NpmRegistries)              // map of @scope to info
	auths := make(map[string]*npmRegistryAuth) // map of host to auth

	getOrCreateAuth := func(host string) *npmRegistryAuth {
		host, _ = strings.CutSuffix(host, "/")
		if a, ok := auths[host]; ok {
			return a
		}
		auths[host] = &npmRegistryAuth{}

		return auths[host]
	}

	makeRegistry := func(fullURL string) (npmRegistry, error) {
		u, err := url.Parse(fullURL)
		if err != nil {
			return npmRegistry{}, fmt.Errorf("parsing registry url %q: %w", fullURL, err)
		}

		return npmRegistry{URL: fullURL, auth: getOrCreateAuth(u.Host + u.Path)}, nil
	}

	var err error
	if infos[""], err = makeRegistry(DefaultNpmRegistry); err != nil {
		return nil, err
	}

	const (
		scopeRegistry = `^(@.*):registry$`
		authToken     = `^//(.*):_authToken$`
		authBasic     = `^//(.*):_auth$`
		username      = `^//(.*):username$`
		password      = `^//(.*):_password$`
	)

	if npmrc != nil {
		for _, k := range npmrc.Keys() {
			name := k.Name()
			value := os.ExpandEnv(k.String())

			switch {
			case name == "registry":
				if infos[""], err = makeRegistry(value); err != nil {
					return nil, err
				}
			case cachedregexp.MatchString(scopeRegistry, name):
				scope := cachedregexp.FindStringSubmatch(scopeRegistry, name)[1]
				if infos[scope], err = makeRegistry(value); err != nil {
					return nil, err
				}
			case cachedregexp.MatchString(authToken, name):
				getOrCreateAuth(cachedregexp.FindStringSubmatch(authToken, name)[1]).authToken = value
			case cachedregexp.MatchString(authBasic, name):
				getOrCreateAuth(cachedregexp.FindStringSubmatch(authBasic, name)[1]).auth = value
			case cachedregexp.MatchString(username, name):
				getOrCreateAuth(cachedregexp.FindStringSubmatch(username, name)[1]).username = value
			case cachedregexp.MatchString(password, name):
				getOrCreateAuth(cachedregexp.FindStringSubmatch(password, name)[1]).password = value
			}
		}
	}

	if defaultURL != "" {
		if infos[""], err = makeRegistry(defaultURL); err != nil {
			return nil, err
		}
	}

	return infos, nil
}
