package dataset

import "context"

type Interface interface {
	// Generate synthesizes n examples in parallel and writes them, plus a
	// manifest, under the output directory. Output does not depend on the
	// number of workers.
	Generate(ctx context.Context, n int) (*Manifest, error)
}
