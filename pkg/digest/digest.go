package digest

import (
	"fmt"
	"strings"
)

const AlgorithmSHA256 = "sha256"

// PrefixLength is the number of leading bytes covered by a prefix signature.
// Prefix signatures are a cheap change-detection proxy; matching prefixes do
// not guarantee identical content past this boundary.
const PrefixLength = 8 * 1024

func New(algorithm, sum string) (Digest, error) {
	if strings.TrimSpace(algorithm) == "" {
		return Digest{}, fmt.Errorf("digest algorithm is required")
	}
	if strings.TrimSpace(sum) == "" {
		return Digest{}, fmt.Errorf("digest sum is required")
	}

	return Digest{
		Algorithm: strings.TrimSpace(algorithm),
		Sum:       strings.TrimSpace(sum),
	}, nil
}

// Digest is a typed content signature.
// represented as "<algorithm>:<hex>".
type Digest struct {
	Algorithm string
	Sum       string
}

func (d Digest) IsZero() bool {
	return d.Algorithm == "" && d.Sum == ""
}

func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.Algorithm, d.Sum)
}

func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Sum == other.Sum
}

func Parse(raw string) (Digest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Digest{}, nil
	}

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 1:
		// Sidecars written by older versions hold a bare hex sum.
		return New(AlgorithmSHA256, parts[0])
	case 2:
		return New(parts[0], parts[1])
	default:
		return Digest{}, fmt.Errorf("invalid digest %q (expected algorithm:sum)", raw)
	}
}
