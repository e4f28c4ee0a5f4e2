package boothcode

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// QR renders code as a PNG QR image of size pixels square.
func QR(code string, size int) ([]byte, error) {
	code = Normalize(code)
	if !Valid(code) {
		return nil, fmt.Errorf("render qr: invalid booth code %q", code)
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
