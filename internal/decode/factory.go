package decode

import (
	"fmt"

	"dupview/internal/config"
	"dupview/internal/dv"
	"dupview/internal/secrets"
)

var (
	_ dv.Decoder = (*GPGDecoder)(nil)
	_ dv.Decoder = TestDecoder{}
	_ dv.Decoder = NoneDecoder{}
)

// NewDecoderFromConfig creates a Decoder based on the configuration type.
// source is only consulted by the gpg decoder.
func NewDecoderFromConfig(cfg config.DecodeConfig, source secrets.Source) (dv.Decoder, error) {
	switch cfg.Type {
	case "gpg", "":
		return NewGPGDecoder(source, cfg.SecretKeyringPath), nil
	case "test":
		return TestDecoder{}, nil
	case "none":
		return NoneDecoder{}, nil
	default:
		return nil, fmt.Errorf("unknown decode type: %q", cfg.Type)
	}
}
