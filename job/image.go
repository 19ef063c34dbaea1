package job

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ImageSource loads a decoded image for a path.
type ImageSource interface {
	Load(path string) (image.Image, error)
}

// FileImageSource decodes PNG, JPEG and GIF files from disk.
type FileImageSource struct{}

func (FileImageSource) Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
