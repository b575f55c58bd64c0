package session

import "kptv-browser/work/hls"

type hlsFactory struct {
	f *hls.Factory
}

// FromHLS adapts an hls.Factory to the session's HandleFactory.
func FromHLS(f *hls.Factory) HandleFactory {
	return hlsFactory{f: f}
}

func (a hlsFactory) Supported() bool {
	return a.f.Supported()
}

func (a hlsFactory) Acquire() (AdaptiveHandle, error) {
	h, err := a.f.New()
	if err != nil {
		return nil, err
	}
	return h, nil
}
