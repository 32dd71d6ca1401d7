//go:build linux

package afpacket

import (
	"fmt"
)

// ringGeometry is the PACKET_MMAP layout of the capture ring.
type ringGeometry struct {
	frameSize int
	blockSize int
	numBlocks int
}

// ringSize lays out a ring of roughly bufferMB megabytes for frames up to snapLen bytes.
//
// PACKET_MMAP requires frames aligned to TPACKET_ALIGNMENT, blocks that are a
// multiple of the page size and of the frame size, and at least one block.
func ringSize(bufferMB, snapLen, pageSize int) (ringGeometry, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(bufferMB, snapLen, pageSize)
	if err != nil {
		return ringGeometry{}, err
	}
	return ringGeometry{frameSize: frameSize, blockSize: blockSize, numBlocks: numBlocks}, nil
}

func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16 // TPACKET_ALIGNMENT for AF_PACKET
	const tpacketHdrLen = 52    // TPACKET2_HDRLEN or TPACKET3_HDRLEN (approximate)

	// Validate input parameters
	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 || pageSize&(pageSize-1) != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be a power of two and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	// Step 1: Calculate frame size (header + packet data), aligned to TPACKET_ALIGNMENT
	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	// Step 2: block size is a multiple of both pageSize and frameSize
	minBlockSize := pageSize
	if minBlockSize < frameSize {
		minBlockSize = frameSize
	}

	// Find the LCM (Least Common Multiple) of pageSize and frameSize
	blockSize = lcm(pageSize, frameSize)

	maxBlockSize := 4 * 1024 * 1024 // 4 MB
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	if blockSize > maxBlockSize {
		blockSize = (maxBlockSize / pageSize) * pageSize
	}

	// Step 3: when the LCM was capped, round the frame up to a power of two so
	// that it divides the power-of-two block.
	if blockSize%frameSize != 0 {
		p := tpacketAlignment
		for p < frameSize {
			p <<= 1
		}
		frameSize = p
		if blockSize < frameSize {
			blockSize = frameSize
		}
	}

	// Step 4: number of blocks within the memory budget
	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}

	return frameSize, blockSize, numBlocks, nil
}

// gcd computes the greatest common divisor of two integers
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm computes the least common multiple of two integers
func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
