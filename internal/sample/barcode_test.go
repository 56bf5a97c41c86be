package sample_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tracseq/lims-core/internal/sample"
	"github.com/tracseq/lims-core/pkg/clock"
)

func TestGenerateMatchesFormat(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	gen := sample.NewBarcodeGenerator(clk)

	barcode := gen.Generate(sample.TypeDNA)

	assert.True(t, sample.ValidateBarcodeFormat(barcode), "barcode %q must match ^[A-Z]+-\\d{14}-\\d{4}$", barcode)
	assert.Contains(t, barcode, "20260314092653")
}

func TestGenerateIsMonotonicPerPrefix(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	gen := sample.NewBarcodeGenerator(clk)

	first := gen.Generate(sample.TypeDNA)
	second := gen.Generate(sample.TypeDNA)

	assert.NotEqual(t, first, second)
}

func TestGenerateUsesTypeInitialsAsPrefix(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	gen := sample.NewBarcodeGenerator(clk)

	barcode := gen.Generate(sample.TypeCellCulture)

	assert.Regexp(t, `^CC-\d{14}-\d{4}$`, barcode)
}

func TestValidateBarcodeFormatRejectsMalformed(t *testing.T) {
	assert.False(t, sample.ValidateBarcodeFormat("not-a-barcode"))
	assert.False(t, sample.ValidateBarcodeFormat("DNA-2026-0001"))
	assert.True(t, sample.ValidateBarcodeFormat("DNA-20260314092653-0001"))
}
