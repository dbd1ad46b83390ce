package fetcher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var ErrDecrypt = errors.New("failed to decrypt model")

const (
	ivSize     = 16
	keySize    = 32
	headerSize = ivSize + keySize
)

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	if !bytes.Equal(data[len(data)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	return data[:len(data)-n], nil
}

// Decrypt turns a downloaded preview into container bytes. The layout is
// iv (16) | key (32) | AES-CBC ciphertext; the plaintext is the little-endian
// decoded size followed by a zstd frame.
func Decrypt(data []byte) ([]byte, error) {
	if len(data) < headerSize+aes.BlockSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrDecrypt, len(data))
	}
	iv := data[:ivSize]
	key := data[ivSize:headerSize]
	body := data[headerSize:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block aligned", ErrDecrypt)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	plain, err = unpad(plain)
	if err != nil {
		return nil, err
	}
	if len(plain) < 4 {
		return nil, fmt.Errorf("%w: missing decoded size", ErrDecrypt)
	}
	size := binary.LittleEndian.Uint32(plain[:4])

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(size)+1<<20))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(plain[4:], make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrDecrypt, err)
	}
	if uint32(len(out)) < size {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrDecrypt, len(out), size)
	}
	return out[:size], nil
}
