package clip_pool

import "kws-synth/clip"

// Pools are the three read-only clip collections examples are drawn from.
type Pools struct {
	Positives   []clip.Clip
	Negatives   []clip.Clip
	Backgrounds []clip.Clip
}

type Interface interface {
	Load(root string) (*Pools, error)
	LoadDir(dir string, class clip.Class) ([]clip.Clip, error)
	LoadFile(path string, class clip.Class) (clip.Clip, error)
}
