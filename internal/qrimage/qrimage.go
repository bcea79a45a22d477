// Package qrimage renders QR payloads as PNG data URLs for display on the
// teacher's screen.
package qrimage

import (
	"encoding/base64"
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// DataURL encodes content as a QR code PNG of size pixels and returns it as a
// data URL with medium error correction.
func DataURL(content string, size int) (string, error) {
	if content == "" {
		return "", errors.New("qr content is empty")
	}
	if size <= 0 {
		return "", errors.New("qr image size must be > 0")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
