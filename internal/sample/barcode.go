package sample

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
	"sync"

	"github.com/tracseq/lims-core/pkg/clock"
)

// barcodePattern is the wire format fixed by spec.md §6.
var barcodePattern = regexp.MustCompile(`^[A-Z]+-\d{14}-\d{4}$`)

// ValidateBarcodeFormat reports whether barcode matches spec.md §6's
// ^[A-Z]+-\d{14}-\d{4}$ shape.
func ValidateBarcodeFormat(barcode string) bool {
	return barcodePattern.MatchString(barcode)
}

// BarcodeGenerator produces unique barcodes: <TYPE-PREFIX>-<14 digit clock
// timestamp>-<4 digit monotonic counter>. The counter is tracked per prefix
// so two different sample types minted in the same second never collide,
// and is seeded from crypto/rand so a freshly started coordinator instance
// doesn't replay the same suffix sequence as a prior one.
type BarcodeGenerator struct {
	clock clock.Clock

	mu       sync.Mutex
	counters map[string]uint16
}

// NewBarcodeGenerator builds a generator backed by clk.
func NewBarcodeGenerator(clk clock.Clock) *BarcodeGenerator {
	return &BarcodeGenerator{clock: clk, counters: map[string]uint16{}}
}

// Generate returns the next barcode for sampleType.
func (g *BarcodeGenerator) Generate(sampleType Type) string {
	prefix := barcodePrefix(sampleType)
	timestamp := g.clock.Now().Format("20060102150405")

	g.mu.Lock()
	defer g.mu.Unlock()

	counter, seeded := g.counters[prefix]
	if !seeded {
		counter = seedCounter()
	}

	counter = (counter + 1) % 10000
	g.counters[prefix] = counter

	return fmt.Sprintf("%s-%s-%04d", prefix, timestamp, counter)
}

func seedCounter() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}

	return binary.BigEndian.Uint16(b[:]) % 10000
}
