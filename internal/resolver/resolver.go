// Package resolver turns validated codes into products: exact catalogue hits,
// an optional remote collaborator, fuzzy matches over known codes, and finally
// a generated stub or a not-found answer depending on policy.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/catalog"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/fuzzy"
)

// DefaultThreshold is the similarity a fuzzy match must exceed.
const DefaultThreshold = 0.8

var (
	errEmptyCode     = errors.New("code cannot be empty")
	errUnknownPolicy = errors.New("unknown not-found policy")
)

// Match names how a product was found.
type Match string

// Match kinds.
const (
	MatchExact     Match = "exact"
	MatchRemote    Match = "remote"
	MatchFuzzy     Match = "fuzzy"
	MatchGenerated Match = "generated"
	MatchNotFound  Match = "not_found"
)

// Policy decides what happens when nothing matches.
type Policy string

// Not-found policies.
const (
	PolicyGenerate Policy = "generate"
	PolicyNotFound Policy = "not_found"
)

// ParsePolicy accepts "generate" and "not_found". An empty value means generate.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.TrimSpace(s)); p {
	case "":
		return PolicyGenerate, nil
	case PolicyGenerate, PolicyNotFound:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownPolicy, s)
	}
}

// ResolvedProduct is the answer for one code. Confidence below 1 or
// IsGenerated marks anything that is not an exact hit.
type ResolvedProduct struct {
	Code        string           `json:"code"`
	Product     *catalog.Product `json:"product,omitempty"`
	Confidence  float64          `json:"confidence"`
	IsGenerated bool             `json:"is_generated"`
	Match       Match            `json:"match"`
	MatchedCode string           `json:"matched_code,omitempty"`

	// degraded is set when the remote lookup failed on the way to this answer.
	degraded bool
}

// Degraded reports whether the answer was reached without a working remote,
// so a later lookup may resolve differently.
func (r ResolvedProduct) Degraded() bool { return r.degraded }

// Exact reports whether the product was found under the code itself.
func (r ResolvedProduct) Exact() bool {
	return r.Product != nil && r.Confidence == 1 && !r.IsGenerated
}

func (r ResolvedProduct) clone() ResolvedProduct {
	if r.Product != nil {
		p := *r.Product
		r.Product = &p
	}

	return r
}

// Resolver resolves a code to a product.
type Resolver interface {
	Resolve(ctx context.Context, code string) (ResolvedProduct, error)
}

// Remote looks a code up in an external product service. A nil product with
// a nil error is a miss.
type Remote interface {
	Lookup(ctx context.Context, code string) (*catalog.Product, error)
}

// Options tune a CatalogResolver.
type Options struct {
	Threshold float64
	Policy    Policy
	Remote    Remote
}

// CatalogResolver implements the lookup order over a local catalogue.
type CatalogResolver struct {
	catalog   *catalog.Catalog
	threshold float64
	policy    Policy
	remote    Remote
}

// New creates a resolver over c. A zero threshold means DefaultThreshold.
func New(c *catalog.Catalog, opts Options) *CatalogResolver {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	if opts.Policy == "" {
		opts.Policy = PolicyGenerate
	}

	return &CatalogResolver{catalog: c, threshold: opts.Threshold, policy: opts.Policy, remote: opts.Remote}
}

// Resolve looks code up locally, then remotely, then fuzzily, then applies the
// not-found policy. With PolicyNotFound a miss returns ErrProductNotFound along
// with a result whose Match is MatchNotFound.
func (r *CatalogResolver) Resolve(ctx context.Context, code string) (ResolvedProduct, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ResolvedProduct{}, errEmptyCode
	}

	if p, ok := r.catalog.Lookup(code); ok {
		return ResolvedProduct{Code: code, Product: &p, Confidence: 1, Match: MatchExact}, nil
	}

	degraded := false

	if r.remote != nil {
		p, err := r.remote.Lookup(ctx, code)

		switch {
		case err != nil:
			degraded = true

			zerolog.Ctx(ctx).Warn().Err(err).Str("code", code).Msg("remote product lookup failed")
		case p != nil:
			return ResolvedProduct{Code: code, Product: p, Confidence: 1, Match: MatchRemote}, nil
		}
	}

	out, err := r.fallback(code)
	out.degraded = degraded

	return out, err
}

// fallback runs the fuzzy search and then the not-found policy.
func (r *CatalogResolver) fallback(code string) (ResolvedProduct, error) {
	if m, ok := fuzzy.Best(code, r.catalog.Codes(), r.threshold); ok {
		if p, ok := r.catalog.Lookup(m.Value); ok {
			return ResolvedProduct{
				Code:        code,
				Product:     &p,
				Confidence:  m.Similarity,
				Match:       MatchFuzzy,
				MatchedCode: m.Value,
			}, nil
		}
	}

	if r.policy == PolicyNotFound {
		return ResolvedProduct{Code: code, Match: MatchNotFound},
			fmt.Errorf("%w: %s", customerrors.ErrProductNotFound, code)
	}

	p := Generate(code)

	return ResolvedProduct{Code: code, Product: &p, IsGenerated: true, Match: MatchGenerated}, nil
}
