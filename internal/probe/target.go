package probe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/token"
)

const (
	defaultObjectDir  = "/apc/"
	defaultObjectName = "trans.gif"
)

// ErrInvalidTarget is returned for an endpoint that cannot be fetched.
var ErrInvalidTarget = errors.New("invalid fetch target")

// Target builds request URLs for one endpoint and one fetch kind.
type Target struct {
	kind     measure.Kind
	host     string
	wildcard bool
	dir      string
	name     string
	tokens   *token.Source
	current  string
}

// NewTarget derives the fetch target of spec for a single fetch kind.
func NewTarget(spec measure.EndpointSpec, kind measure.Kind, tokens *token.Source) (*Target, error) {
	if kind.Scheme() == "" {
		return nil, fmt.Errorf("%w: kind %s is not a single fetch kind", ErrInvalidTarget, kind)
	}
	if !spec.Kinds.Has(kind) {
		return nil, fmt.Errorf("%w: endpoint %q does not support %s", ErrInvalidTarget, spec.HostPattern, kind)
	}
	host := strings.TrimSpace(spec.HostPattern)
	wildcard := strings.HasPrefix(host, measure.WildcardPrefix)
	if wildcard {
		host = strings.TrimPrefix(host, measure.WildcardPrefix)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty host pattern", ErrInvalidTarget)
	}
	if tokens == nil {
		tokens = token.NewSource(nil)
	}
	dir, name := splitObjectPath(spec.ObjectPath)
	return &Target{
		kind:     kind,
		host:     host,
		wildcard: wildcard,
		dir:      dir,
		name:     name,
		tokens:   tokens,
	}, nil
}

// splitObjectPath splits "dir/file" at the last slash. An empty path yields
// the default object; a bare file name is served from the root.
func splitObjectPath(path string) (dir, name string) {
	if path == "" {
		return defaultObjectDir, defaultObjectName
	}
	idx := strings.LastIndex(path, "/") + 1
	dir, name = path[:idx], path[idx:]
	if dir == "" {
		dir = "/"
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	return dir, name
}

// Kind returns the fetch kind of the target.
func (t *Target) Kind() measure.Kind {
	return t.kind
}

// Object returns the file name of the fetched object.
func (t *Target) Object() string {
	return t.name
}

// CurrentEndpoint returns the host, or random label for wildcard hosts, used
// by the most recent NextURL call.
func (t *Target) CurrentEndpoint() string {
	return t.current
}

// NextURL returns a new request URL with a fresh cache-busting token and, for
// wildcard hosts, a fresh subdomain label.
func (t *Target) NextURL() string {
	var b strings.Builder
	b.WriteString(t.kind.Scheme())
	b.WriteString("://")
	if t.wildcard {
		label := t.tokens.Next()
		t.current = label
		b.WriteString(label)
		b.WriteByte('.')
	} else {
		t.current = t.host
	}
	b.WriteString(t.host)
	b.WriteString(t.dir)
	b.WriteString(t.name)
	b.WriteByte('?')
	b.WriteString(t.tokens.Next())
	return b.String()
}
