// Package source prepares user scripts for execution. It wraps a script in
// the fixed pre-roll and post-roll fragments and computes the line offset
// needed to map engine-reported lines back to the user's own source.
package source

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
)

// Default resource names of the wrapping fragments.
const (
	DefaultPreRoll  = "jsconsole-preroll.js"
	DefaultPostRoll = "jsconsole-postroll.js"
)

//go:embed resources
var embedded embed.FS

// Resources returns the fragments bundled with the binary.
func Resources() fs.FS {
	sub, err := fs.Sub(embedded, "resources")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrResourceMissing is returned by New when a wrapping fragment cannot be
// read. It is fatal: the console cannot run scripts without it.
var ErrResourceMissing = errors.New("script resource missing")

// ImportResolver expands import directives in a script. Script engines that
// understand imports implement it so that offsets account for nested files.
type ImportResolver interface {
	ResolveImports(source string) (string, error)
}

// Rewritten is a script ready for the engine.
type Rewritten struct {
	// Source is the pre-roll directive, the user script and the post-roll.
	Source string

	// OriginalLines is the line count of the user script.
	OriginalLines int

	// ResolvedLines is the line count of the pre-roll and user script after
	// import expansion.
	ResolvedLines int

	// Offset is OriginalLines - ResolvedLines. Adding it to an
	// engine-reported line yields the line in the user script.
	Offset int
}

// UserLine maps a line reported by the engine back to the user script.
func (r Rewritten) UserLine(reported int) int {
	return reported + r.Offset
}

// Options configures a Rewriter.
type Options struct {
	// Resources holds the pre-roll and post-roll fragments.
	// Defaults to the embedded resources.
	Resources fs.FS

	// PreRoll and PostRoll are resource names. Default to DefaultPreRoll
	// and DefaultPostRoll.
	PreRoll  string
	PostRoll string

	// Resolver expands imports when counting resolved lines. When nil the
	// literal source is counted and nested imports are not accounted for.
	Resolver ImportResolver

	Logger *slog.Logger
}

// Rewriter wraps user scripts. It is safe for concurrent use.
type Rewriter struct {
	directive string
	postRoll  string
	resolver  ImportResolver
	logger    *slog.Logger
}

// New reads the post-roll fragment once and checks the pre-roll exists.
func New(opts Options) (*Rewriter, error) {
	if opts.Resources == nil {
		opts.Resources = Resources()
	}
	if opts.PreRoll == "" {
		opts.PreRoll = DefaultPreRoll
	}
	if opts.PostRoll == "" {
		opts.PostRoll = DefaultPostRoll
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if _, err := fs.Stat(opts.Resources, opts.PreRoll); err != nil {
		return nil, fmt.Errorf("%w: pre-roll %s: %v", ErrResourceMissing, opts.PreRoll, err)
	}
	post, err := fs.ReadFile(opts.Resources, opts.PostRoll)
	if err != nil {
		return nil, fmt.Errorf("%w: post-roll %s: %v", ErrResourceMissing, opts.PostRoll, err)
	}

	return &Rewriter{
		directive: ImportDirective(opts.PreRoll),
		postRoll:  strings.TrimRight(string(post), "\r\n"),
		resolver:  opts.Resolver,
		logger:    opts.Logger,
	}, nil
}

// Rewrite wraps script and computes its offset.
func (r *Rewriter) Rewrite(script string) Rewritten {
	wrapped := r.directive + "\n" + script
	resolved := wrapped
	if r.resolver != nil {
		expanded, err := r.resolver.ResolveImports(wrapped)
		if err != nil {
			// The engine reports the same import failure when it runs.
			r.logger.Debug("import resolution failed; counting literal source", "err", err)
		} else {
			resolved = expanded
		}
	}

	original := CountLines(script)
	resolvedLines := CountLines(resolved)
	return Rewritten{
		Source:        wrapped + "\n" + r.postRoll,
		OriginalLines: original,
		ResolvedLines: resolvedLines,
		Offset:        original - resolvedLines,
	}
}

// ImportDirective returns the directive that imports the named resource.
func ImportDirective(resource string) string {
	return `<import resource="classpath:` + resource + `">`
}

// eol matches every end-of-line style a script author may have used.
var eol = regexp.MustCompile(`\r?\n\r?|\r`)

// CountLines counts the lines of s. Trailing empty lines are not counted,
// and a string without any line break is a single line.
func CountLines(s string) int {
	parts := eol.Split(s, -1)
	if len(parts) == 1 {
		return 1
	}
	n := len(parts)
	for n > 0 && parts[n-1] == "" {
		n--
	}
	return n
}
