// Package hashkit computes the three fingerprints the rest of the core
// relies on: content SHA-256, a 64-bit locality-sensitive text SimHash, and
// a 64-bit perceptual image dHash (spec §4.1).
package hashkit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/corona10/goimagehash"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexUTF32 returns the lowercase hex SHA-256 digest of text encoded
// as UTF-32 (a little-endian byte-order mark followed by little-endian code
// points), matching the historic values produced by the Python corpus this
// store was migrated from (spec §4.1: "Text-body SHA-256 is computed over
// the text encoded as UTF-32 (not UTF-8) to preserve historic values").
func SHA256HexUTF32(text string) string {
	return hex.EncodeToString(sha256Sum(utf32LEWithBOM(text)))
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// utf32LEWithBOM encodes a Go string (UTF-8 internally) the way Python's
// `str.encode('UTF-32')` does on a little-endian host: the BOM U+FEFF
// followed by every code point, each as four little-endian bytes.
func utf32LEWithBOM(s string) []byte {
	// Python's generic "UTF-32" codec writes a native-order BOM followed by
	// the code points in that order. CPython on the platforms this corpus
	// was generated on is little-endian, so replicate LE-with-BOM exactly.
	runes := []rune(s)
	buf := make([]byte, 0, 4+4*len(runes))
	buf = append(buf, 0xFF, 0xFE, 0x00, 0x00) // U+FEFF BOM, little-endian
	tmp := make([]byte, 4)
	for _, r := range runes {
		cp := uint32(r)
		tmp[0] = byte(cp)
		tmp[1] = byte(cp >> 8)
		tmp[2] = byte(cp >> 16)
		tmp[3] = byte(cp >> 24)
		buf = append(buf, tmp...)
	}
	return buf
}

// DHashHex computes the 64-bit perceptual difference hash of an image and
// formats it as 16 lowercase hex characters (spec §4.1). It delegates the
// grayscale-and-difference math to goimagehash's DifferenceHash, the
// canonical Krawetz dHash: one bit per horizontally adjacent pixel pair of
// a 9x8 grayscale grid. Only row differences are hashed; no
// column-difference hash is included.
func DHashHex(imageBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("compute dhash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// DHashBitsDifferent returns the Hamming distance between two 16-hex-char
// dHash strings.
func DHashBitsDifferent(a, b string) (int, error) {
	av, err := parseHexHash(a)
	if err != nil {
		return 0, err
	}
	bv, err := parseHexHash(b)
	if err != nil {
		return 0, err
	}
	return popcount64(av ^ bv), nil
}

func parseHexHash(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%016x", &v)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return v, nil
}

func popcount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

// textSimHashShingleSize is the number of whitespace-separated tokens in
// each SimHash shingle (4-grams, spec §4.1).
const textSimHashShingleSize = 4

// TextSimHashHex computes a 64-bit locality-sensitive SimHash over
// whitespace-tokenized 4-grams of the ad body text with default (uniform)
// feature weights, formatted as lowercase hex without a leading "0x" (spec
// §4.1). This is the widely used scheme the spec calls out as the one the
// existing corpus was generated with.
func TextSimHashHex(text string) string {
	return fmt.Sprintf("%x", TextSimHash(text))
}

// TextSimHash is the integer form of TextSimHashHex.
func TextSimHash(text string) uint64 {
	tokens := strings.Fields(text)
	shingles := shingleTokens(tokens, textSimHashShingleSize)
	if len(shingles) == 0 {
		// No tokens at all (empty or whitespace-only body): hash a single
		// empty shingle. Bodies shorter than the shingle size already form
		// one shingle in shingleTokens and do not reach this branch.
		shingles = []string{strings.Join(tokens, " ")}
	}

	var v [64]int
	for _, shingle := range shingles {
		h := fnv.New64a()
		h.Write([]byte(shingle))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if (sum>>uint(i))&1 == 1 {
				v[i]++
			} else {
				v[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if v[i] >= 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

func shingleTokens(tokens []string, n int) []string {
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) < n {
		return []string{strings.Join(tokens, " ")}
	}
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], " "))
	}
	return shingles
}

// TextHammingDistance returns the number of differing bits between two
// 64-bit SimHash values.
func TextHammingDistance(a, b uint64) int {
	return popcount64(a ^ b)
}
