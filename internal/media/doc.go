// Package media decodes images and derives what the per-item operations
// store: thumbnails, EXIF and audio tags, capture dates, dominant colour,
// sharpness, the visual hash used for duplicate grouping and a uniformity
// class for solid-colour and near-empty pictures.
//
// Decoding goes through LoadImageConstrained, which downscales anything over
// MaxImageDimension or MaxImagePixels before further work. When libvips is
// initialized, Thumbnailer prefers it and falls back to imaging on failure.
package media
