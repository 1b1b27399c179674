package walk

import "regexp"

// Options configures a traversal, shared by both backends: a plain struct
// with With* builder methods and a compiled exclude-pattern list.
type Options struct {
	// Workers is the pool backend's runner count. Unused by the
	// submit/complete backend, which is always single-threaded.
	Workers int

	// Xdev prevents crossing filesystem device boundaries.
	Xdev bool

	// Verbose gates the [W%d]/[ENGINE]-style diagnostic trace lines
	// printed to stderr.
	Verbose bool

	// ExcludePatterns are compiled regexes matched against full child
	// paths; a match skips that entry entirely (file or directory).
	ExcludePatterns []*regexp.Regexp

	// MaxDepth is a pure display cutoff for the printer (internal/printer),
	// not a traversal limit: 0 means unlimited, otherwise records deeper
	// than this many levels below their root are still fully traversed and
	// still cascade into their ancestors' totals, they just don't get
	// their own output line.
	MaxDepth int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Workers: 8,
		Xdev:    false,
	}
}

func (o *Options) WithWorkers(n int) *Options {
	o.Workers = n
	return o
}

func (o *Options) WithXdev(xdev bool) *Options {
	o.Xdev = xdev
	return o
}

func (o *Options) WithVerbose(v bool) *Options {
	o.Verbose = v
	return o
}

// AddExcludePattern compiles and appends an exclude regex.
func (o *Options) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// ShouldExclude reports whether path matches any exclude pattern.
func (o *Options) ShouldExclude(path string) bool {
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
