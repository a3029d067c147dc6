// Package mocks provides shared test doubles for the generation boundary and
// for stream subscribers.
//
// Each mock uses function fields for custom behaviour and falls back to
// simple default values, recording calls for later assertions:
//
//	gen := &mocks.MockGenerator{
//	    GenerateFn: func(ctx context.Context, req generation.Request, progress chan<- generation.Progress) (string, error) {
//	        return "", errors.New("boom")
//	    },
//	}
package mocks
