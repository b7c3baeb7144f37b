// SPDX-License-Identifier: MIT
package media

import (
	"fmt"
	"sort"
	"strings"
)

// CompressedFormats are the extensions handed to ffmpeg by NewRegistry.
var CompressedFormats = []string{".mp3", ".ogg", ".opus", ".m4a", ".aac", ".flac"}

// Registry picks a codec by file extension.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns a registry that decodes WAV natively and every entry of
// CompressedFormats with ff.
func NewRegistry(ff FFmpegCodec) *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(".wav", WAVCodec{})
	for _, ext := range CompressedFormats {
		r.Register(ext, ff)
	}
	return r
}

// Register binds ext (with or without the leading dot) to c.
func (r *Registry) Register(ext string, c Codec) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.codecs[ext] = c
}

// Lookup returns the codec for path's extension.
func (r *Registry) Lookup(path string) (Codec, error) {
	c, ok := r.codecs[Ext(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, Ext(path))
	}
	return c, nil
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.codecs))
	for ext := range r.codecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
