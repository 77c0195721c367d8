package utils

import "crypto/rand"

const alphaNumericCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a random string of the requested length drawn
// from the alphanumeric charset.
func GenerateRandomString(length int) string {
	return GenerateRandomStringFromCharset(length, alphaNumericCharset)
}

// GenerateRandomStringFromCharset returns a random string built from charset
// using crypto/rand. Sampling is modulo the charset length which is fine for
// the small charsets in use here.
func GenerateRandomStringFromCharset(length int, charset string) string {
	randomBytes := GenerateRandomBytes(length)
	out := make([]byte, length)
	for i, b := range randomBytes {
		out[i] = charset[int(b)%len(charset)]
	}
	return string(out)
}

// GenerateRandomBytes returns the requested number of bytes using crypto/rand.
func GenerateRandomBytes(length int) []byte {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return randomBytes
}
