package net

import "math/bits"

// Shanda is the keyless six-round byte scrambler layered under the AES
// keystream. Outbound bodies are scrambled before the keystream is applied,
// inbound bodies are unscrambled after it is removed.

const (
	shandaRounds  = 6
	shandaForward = 0x48
	shandaReverse = 0x13
)

// ShandaEncrypt scrambles data in place.
func ShandaEncrypt(data []byte) {
	for round := 0; round < shandaRounds; round++ {
		var remember byte
		length := byte(len(data))
		if round%2 == 0 {
			for i := range data {
				cur := bits.RotateLeft8(data[i], 3)
				cur += length
				cur ^= remember
				remember = cur
				cur = bits.RotateLeft8(cur, -int(length&7))
				cur = ^cur + shandaForward
				length--
				data[i] = cur
			}
			continue
		}
		for i := len(data) - 1; i >= 0; i-- {
			cur := bits.RotateLeft8(data[i], 4)
			cur += length
			cur ^= remember
			remember = cur
			cur ^= shandaReverse
			cur = bits.RotateLeft8(cur, -3)
			length--
			data[i] = cur
		}
	}
}

// ShandaDecrypt reverses ShandaEncrypt in place.
func ShandaDecrypt(data []byte) {
	for round := 1; round <= shandaRounds; round++ {
		var remember byte
		length := byte(len(data))
		if round%2 == 0 {
			for i := range data {
				cur := ^(data[i] - shandaForward)
				cur = bits.RotateLeft8(cur, int(length&7))
				next := cur
				cur ^= remember
				remember = next
				cur -= length
				data[i] = bits.RotateLeft8(cur, -3)
				length--
			}
			continue
		}
		for i := len(data) - 1; i >= 0; i-- {
			cur := bits.RotateLeft8(data[i], 3)
			cur ^= shandaReverse
			next := cur
			cur ^= remember
			remember = next
			cur -= length
			data[i] = bits.RotateLeft8(cur, -4)
			length--
		}
	}
}
