package api

import (
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

// DetectContentType sniffs the content type of a local file. Parameters
// such as charset are dropped.
func DetectContentType(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	ct, _, err := mime.ParseMediaType(mt.String())
	if err != nil {
		return mt.String(), nil
	}
	return ct, nil
}
