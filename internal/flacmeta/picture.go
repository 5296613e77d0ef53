// Copyright 2021 Daniel Erat.
// All rights reserved.

package flacmeta

import (
	"fmt"

	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacpicture"
)

// LargestPicture returns the largest embedded PICTURE metadata block in
// the FLAC file at path, decoded to raw image bytes plus its MIME type.
// It returns (nil, "", nil) if the file has no embedded picture, since
// that's not itself an error (spec.md §4.F treats missing art as a 404 at
// serve time, not a build-time failure).
func LargestPicture(path string) (data []byte, mime string, err error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrIO, err)
	}

	var best *flacpicture.MetadataBlockPicture
	for _, block := range f.Meta {
		if block.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue // tolerate a malformed picture block; it's optional metadata
		}
		if best == nil || len(pic.ImageData) > len(best.ImageData) {
			best = pic
		}
	}
	if best == nil {
		return nil, "", nil
	}
	return best.ImageData, best.MIME, nil
}
