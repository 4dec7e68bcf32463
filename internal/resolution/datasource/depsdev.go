package datasource

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync"

	pb "deps.dev/api/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// InsightsClient is the subset of the deps.dev API the resolvers use.
// pb.InsightsClient satisfies it.
type InsightsClient interface {
	GetPackage(ctx context.Context, in *pb.GetPackageRequest, opts ...grpc.CallOption) (*pb.Package, error)
	GetDependencies(ctx context.Context, in *pb.GetDependenciesRequest, opts ...grpc.CallOption) (*pb.Dependencies, error)
}

// DepsDevAPIClient wraps an InsightsClient, caching successful responses.
type DepsDevAPIClient struct {
	InsightsClient

	mu           sync.Mutex
	packageCache map[packageKey]*pb.Package
	depsCache    map[versionKey]*pb.Dependencies
}

// Comparable types to use as map keys for cache.
type packageKey struct {
	System pb.System
	Name   string
}

type versionKey struct {
	System  pb.System
	Name    string
	Version string
}

func makePackageKey(k *pb.PackageKey) packageKey {
	return packageKey{System: k.GetSystem(), Name: k.GetName()}
}

func makeVersionKey(k *pb.VersionKey) versionKey {
	return versionKey{System: k.GetSystem(), Name: k.GetName(), Version: k.GetVersion()}
}

// NewDepsDevAPIClient dials addr over TLS using the system certificates.
func NewDepsDevAPIClient(addr, userAgent string) (*DepsDevAPIClient, error) {
	certPool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("getting system cert pool: %w", err)
	}
	creds := credentials.NewClientTLSFromCert(certPool, "")
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}

	if userAgent != "" {
		dialOpts = append(dialOpts, grpc.WithUserAgent(userAgent))
	}

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialling %q: %w", addr, err)
	}

	return NewCachedInsightsClient(pb.NewInsightsClient(conn)), nil
}

func NewCachedInsightsClient(ic InsightsClient) *DepsDevAPIClient {
	return &DepsDevAPIClient{
		InsightsClient: ic,
		packageCache:   make(map[packageKey]*pb.Package),
		depsCache:      make(map[versionKey]*pb.Dependencies),
	}
}

func (c *DepsDevAPIClient) GetPackage(ctx context.Context, in *pb.GetPackageRequest, opts ...grpc.CallOption) (*pb.Package, error) {
	key := makePackageKey(in.GetPackageKey())
	c.mu.Lock()
	pkg, ok := c.packageCache[key]
	c.mu.Unlock()
	if ok {
		return pkg, nil
	}

	pkg, err := c.InsightsClient.GetPackage(ctx, in, opts...)
	if err == nil {
		c.mu.Lock()
		c.packageCache[key] = pkg
		c.mu.Unlock()
	}

	return pkg, err
}

func (c *DepsDevAPIClient) GetDependencies(ctx context.Context, in *pb.GetDependenciesRequest, opts ...grpc.CallOption) (*pb.Dependencies, error) {
	key := makeVersionKey(in.GetVersionKey())
	c.mu.Lock()
	deps, ok := c.depsCache[key]
	c.mu.Unlock()
	if ok {
		return deps, nil
	}

	deps, err := c.InsightsClient.GetDependencies(ctx, in, opts...)
	if err == nil {
		c.mu.Lock()
		c.depsCache[key] = deps
		c.mu.Unlock()
	}

	return deps, err
}
