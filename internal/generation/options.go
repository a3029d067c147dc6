package generation

import (
	"fmt"
	"sort"
)

// Options is the catalogue of quality presets and aspect ratios a request
// may choose from.
type Options struct {
	qualitySteps map[string]int
	aspectRatios map[string][2]int
}

// NewOptions builds the catalogue. Aspect ratio entries must be [width, height].
func NewOptions(qualitySteps map[string]int, aspectRatios map[string][]int) (*Options, error) {
	if len(qualitySteps) == 0 {
		return nil, fmt.Errorf("%w: no quality presets", ErrInvalidConfig)
	}
	if len(aspectRatios) == 0 {
		return nil, fmt.Errorf("%w: no aspect ratios", ErrInvalidConfig)
	}

	o := &Options{
		qualitySteps: make(map[string]int, len(qualitySteps)),
		aspectRatios: make(map[string][2]int, len(aspectRatios)),
	}
	for name, steps := range qualitySteps {
		if steps <= 0 {
			return nil, fmt.Errorf("%w: quality %q has %d steps", ErrInvalidConfig, name, steps)
		}
		o.qualitySteps[name] = steps
	}
	for name, dims := range aspectRatios {
		if len(dims) != 2 || dims[0] <= 0 || dims[1] <= 0 {
			return nil, fmt.Errorf("%w: aspect ratio %q must be [width, height]", ErrInvalidConfig, name)
		}
		o.aspectRatios[name] = [2]int{dims[0], dims[1]}
	}
	return o, nil
}

// Steps returns the inference step count for a quality preset.
func (o *Options) Steps(quality string) (int, bool) {
	steps, ok := o.qualitySteps[quality]
	return steps, ok
}

// Dimensions returns width and height for an aspect ratio.
func (o *Options) Dimensions(aspectRatio string) (width, height int, ok bool) {
	dims, ok := o.aspectRatios[aspectRatio]
	return dims[0], dims[1], ok
}

// Validate checks that the request names a known quality and aspect ratio.
func (o *Options) Validate(req Request) error {
	if _, ok := o.qualitySteps[req.Quality]; !ok {
		return fmt.Errorf("%w: quality %q (allowed: %v)", ErrUnknownOption, req.Quality, o.Qualities())
	}
	if _, ok := o.aspectRatios[req.AspectRatio]; !ok {
		return fmt.Errorf("%w: aspect_ratio %q (allowed: %v)", ErrUnknownOption, req.AspectRatio, o.AspectRatios())
	}
	return nil
}

// Qualities lists the quality preset names in sorted order.
func (o *Options) Qualities() []string {
	return sortedKeys(o.qualitySteps)
}

// AspectRatios lists the aspect ratio names in sorted order.
func (o *Options) AspectRatios() []string {
	return sortedKeys(o.aspectRatios)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
