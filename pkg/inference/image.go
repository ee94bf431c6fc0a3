package inference

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
)

// uploadQuality is the JPEG quality used when a request carries a decoded image.
const uploadQuality = 85

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DetectMIME sniffs the image MIME type. Anything that is not a known image
// format is reported as image/jpeg.
func DetectMIME(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return ct
	default:
		return "image/jpeg"
	}
}
