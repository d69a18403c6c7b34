package sensor

import (
	"github.com/pkg/errors"

	"github.com/video-system/go-sensor-stream/pkg/backend"
)

// ProfileMatcher lets a transport narrow which native profiles may serve a
// request beyond format, resolution and rate.
type ProfileMatcher interface {
	Matches(native backend.StreamProfile, req StreamProfile) bool
}

type claim struct {
	unpacker *Unpacker
	outputs  map[int]bool
}

// ResolveRequests maps every request to a native profile. Formats are
// searched in registration order, then their unpackers in order, then the
// native profiles in enumeration order; the first compatible candidate wins.
//
// A native profile serves at most one request unless the claiming unpacker is
// multiplexed, in which case each of its outputs may be claimed once.
//
// Resolution is all-or-nothing: on failure no mappings are returned.
func ResolveRequests(requests []StreamProfile, natives []backend.StreamProfile, formats []*NativePixelFormat, matcher ProfileMatcher) ([]*RequestMapping, error) {
	if len(requests) == 0 {
		return nil, errors.Wrap(ErrProfileNotSupported, "no streams requested")
	}

	claims := make(map[backend.StreamProfile]*claim)
	mappings := make([]*RequestMapping, 0, len(requests))

	for _, req := range requests {
		m := resolveOne(req, natives, formats, matcher, claims)
		if m == nil {
			return nil, errors.Wrapf(ErrProfileNotSupported, "%s", req)
		}
		c, ok := claims[m.Native]
		if !ok {
			c = &claim{unpacker: m.Unpacker, outputs: make(map[int]bool)}
			claims[m.Native] = c
		}
		c.outputs[m.Output] = true
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func resolveOne(req StreamProfile, natives []backend.StreamProfile, formats []*NativePixelFormat, matcher ProfileMatcher, claims map[backend.StreamProfile]*claim) *RequestMapping {
	for _, pf := range formats {
		for ui := range pf.Unpackers {
			u := &pf.Unpackers[ui]
			out, ok := u.outputFor(req)
			if !ok {
				continue
			}
			for _, np := range natives {
				if np.Format != pf.FourCC || np.FPS != req.FPS ||
					np.Width != req.Width || np.Height != req.Height {
					continue
				}
				if matcher != nil && !matcher.Matches(np, req) {
					continue
				}
				if c, taken := claims[np]; taken {
					if c.unpacker != u || !u.Multiplexed() || c.outputs[out] {
						continue
					}
				}
				return &RequestMapping{
					Request:     req,
					Native:      np,
					PixelFormat: pf,
					Unpacker:    u,
					Output:      out,
				}
			}
		}
	}
	return nil
}

// PrincipalRequestsFromFormats lists every logical profile reachable from the
// native profiles through the registered formats. Order follows the native
// enumeration; duplicates are dropped.
func PrincipalRequestsFromFormats(natives []backend.StreamProfile, formats []*NativePixelFormat) []StreamProfile {
	seen := make(map[StreamProfile]bool)
	var out []StreamProfile
	for _, np := range natives {
		for _, pf := range formats {
			if pf.FourCC != np.Format {
				continue
			}
			for _, u := range pf.Unpackers {
				for _, o := range u.Outputs {
					p := StreamProfile{
						Stream: o.Stream,
						Index:  o.Index,
						Format: o.Format,
						Width:  np.Width,
						Height: np.Height,
						FPS:    np.FPS,
					}
					if !seen[p] {
						seen[p] = true
						out = append(out, p)
					}
				}
			}
		}
	}
	return out
}
