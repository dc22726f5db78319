package freshness

import (
	"context"
	"sort"
)

// Version names a pipeline variant and the vector collection it feeds.
type Version string

const V1 Version = "v1"

type runner func(p *Pipeline, ctx context.Context, res *Result, opts RunOptions) error

var registry = map[Version]runner{
	V1: (*Pipeline).runV1,
}

// SupportedVersions lists the registered versions, sorted.
func SupportedVersions() []string {
	out := make([]string, 0, len(registry))
	for v := range registry {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

func lookup(version string) (runner, error) {
	run, ok := registry[Version(version)]
	if !ok {
		return nil, &UnsupportedVersionError{Version: version}
	}
	return run, nil
}
