package otp

import (
	"encoding/base64"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// maxLabelBytes is the budget for the percent-encoded account label in a
// provisioning URI. Longer labels break scanning in common authenticator
// apps.
const maxLabelBytes = 63

// ProvisioningURI builds the otpauth:// payload an authenticator app
// enrolls from.
func (e *Engine) ProvisioningURI(name, secret string) string {
	uri := fmt.Sprintf("otpauth://totp/%s?secret=%s", encodeLabel(name), secret)
	if e.issuer != "" {
		uri += "&issuer=" + url.QueryEscape(e.issuer)
	}
	return uri
}

// QRCodePNG renders the provisioning URI as a PNG data URL for inline
// display during enrollment.
func (e *Engine) QRCodePNG(name, secret string) (string, error) {
	qr, err := qrcode.New(e.ProvisioningURI(name, secret), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// encodeLabel percent-encodes the account name and shortens it from the
// end to fit the label byte budget. Whole percent-escape triples are
// removed as units so the result never ends in a dangling escape.
func encodeLabel(name string) string {
	encoded := url.PathEscape(name)
	for len(encoded) > maxLabelBytes {
		switch {
		case len(encoded) >= 3 && encoded[len(encoded)-3] == '%':
			encoded = encoded[:len(encoded)-3]
		case len(encoded) >= 2 && encoded[len(encoded)-2] == '%':
			encoded = encoded[:len(encoded)-2]
		default:
			encoded = encoded[:len(encoded)-1]
		}
	}
	return encoded
}
