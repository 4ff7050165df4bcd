package registry

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// RenderQRCode encodes a scan identifier as a PNG image.
func RenderQRCode(scanID string) ([]byte, error) {
	png, err := qrcode.Encode(scanID, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

func qrCodeKey(registrationKey string) string {
	return "qrcodes/" + registrationKey + ".png"
}
