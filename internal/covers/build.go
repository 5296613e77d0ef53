// Copyright 2021 Daniel Erat.
// All rights reserved.

package covers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // embedded pictures are occasionally PNG despite the .jpg cache extension
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/derat/musium/internal/flacmeta"
	"github.com/derat/musium/internal/index"
)

// thumbSize is the max width/height of generated thumbnails, in pixels.
const thumbSize = 256

// jpegQuality matches the teacher's server/cover/cover.go default.
const jpegQuality = 90

// BuildAlbum extracts the largest embedded picture from one of an
// album's FLAC files, writes the full-resolution image and a scaled
// thumbnail under dir, and records the result in store (spec.md §4.F).
// It returns (false, nil) if the source track has no embedded picture,
// which isn't an error: the cache simply has no entry for that album.
func BuildAlbum(store *Store, dir string, albumID uint64, sourcePath string, generatedAt int64, logger *slog.Logger) (bool, error) {
	data, _, err := flacmeta.LargestPicture(sourcePath)
	if err != nil {
		return false, fmt.Errorf("reading embedded picture from %v: %w", sourcePath, err)
	}
	if data == nil {
		return false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("decoding embedded picture from %v: %w", sourcePath, err)
	}

	fullPath := filepath.Join(dir, fmt.Sprintf("%016x.jpg", albumID))
	thumbPath := filepath.Join(dir, fmt.Sprintf("%016x.thumb.jpg", albumID))

	if err := writeJPEG(fullPath, img); err != nil {
		return false, err
	}
	thumb := scaleToThumbnail(img)
	if err := writeJPEG(thumbPath, thumb); err != nil {
		return false, err
	}

	sum := sha256.Sum256(data)
	rec := Record{
		AlbumID:     albumID,
		FullPath:    fullPath,
		ThumbPath:   thumbPath,
		SourceHash:  hex.EncodeToString(sum[:]),
		GeneratedAt: generatedAt,
	}
	if err := store.Put(rec); err != nil {
		return false, err
	}
	logger.Info("cached album art", "album_id", fmt.Sprintf("%#x", albumID), "path", sourcePath)
	return true, nil
}

// scaleToThumbnail downscales img to fit within thumbSize×thumbSize,
// preserving aspect ratio. Adapted from the teacher's server/cover/
// cover.go Scale function, which uses the same
// golang.org/x/image/draw.ApproxBiLinear.Scale call (see DESIGN.md).
func scaleToThumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= thumbSize && h <= thumbSize {
		return img
	}
	var dw, dh int
	if w > h {
		dw = thumbSize
		dh = h * thumbSize / w
	} else {
		dh = thumbSize
		dw = w * thumbSize / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %v: %w", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encoding %v: %w", path, err)
	}
	return nil
}

// CacheLibrary runs the offline cache operation (spec.md §4.F, §6
// `musium cache`): it walks every album in idx, extracts art from its
// first track, and populates store. Errors reading an individual
// album's art are logged and skipped rather than aborting the run,
// matching the teacher's cmd/nup/covers summary-report shape.
func CacheLibrary(idx *index.Index, libraryRoot, coversDir string, store *Store, now func() int64, logger *slog.Logger) (built, skipped, failed int) {
	for _, al := range idx.ListAlbums() {
		view, ok := idx.GetAlbum(al.AlbumID)
		if !ok || len(view.Tracks) == 0 {
			skipped++
			continue
		}
		ref, ok := idx.GetTrack(view.Tracks[0].TrackID)
		if !ok {
			skipped++
			continue
		}
		path := filepath.Join(libraryRoot, ref.Path)
		ok, err := BuildAlbum(store, coversDir, al.AlbumID, path, now(), logger)
		switch {
		case err != nil:
			logger.Error("failed to cache album art", "album_id", fmt.Sprintf("%#x", al.AlbumID), "err", err)
			failed++
		case !ok:
			skipped++
		default:
			built++
		}
	}
	return built, skipped, failed
}
