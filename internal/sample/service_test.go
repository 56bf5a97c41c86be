package sample_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/internal/sample"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

func newTestService() (*sample.Service, *memoryRepository, *eventbus.Bus) {
	repo := newMemoryRepository()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := idgen.NewSequential(0)
	bus := eventbus.New(clk, ids, &mlog.NoneLogger{})

	svc := sample.NewService(repo, nil, bus, clk, ids, &mlog.NoneLogger{})

	return svc, repo, bus
}

func TestCreateAssignsBarcodeAndPendingStatus(t *testing.T) {
	svc, _, bus := newTestService()
	ctx := context.Background()

	conc := decimal.NewFromInt(120)
	vol := decimal.NewFromInt(50)

	s, err := svc.Create(ctx, sample.CreateRequest{
		Name:          "Alpha",
		SampleType:    sample.TypeDNA,
		Concentration: &conc,
		Volume:        &vol,
	})
	require.NoError(t, err)
	assert.True(t, sample.ValidateBarcodeFormat(s.Barcode))
	assert.Equal(t, sample.StatusPending, s.Status)

	assert.Len(t, bus.History(), 1)
	assert.Equal(t, "sample.created", bus.History()[0].EventType)
}

func TestCreateRejectsInvalidSampleType(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), sample.CreateRequest{Name: "Alpha", SampleType: "Not-A-Type"})
	require.Error(t, err)
	assert.Equal(t, constant.KindValidation, constant.KindOf(err))
}

func TestCreateRejectsTemplateWithoutMetadata(t *testing.T) {
	svc, _, _ := newTestService()

	tmpl := idgen.NewSequential(99).NewID()

	_, err := svc.Create(context.Background(), sample.CreateRequest{
		Name:       "Alpha",
		SampleType: sample.TypeDNA,
		TemplateID: &tmpl,
	})
	require.Error(t, err)
	assert.Equal(t, constant.KindValidation, constant.KindOf(err))
}

func TestCreateRejectsDuplicateExplicitBarcode(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	barcode := "DNA-20260101000000-0001"

	_, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA, Barcode: &barcode})
	require.NoError(t, err)

	_, err = svc.Create(ctx, sample.CreateRequest{Name: "Beta", SampleType: sample.TypeDNA, Barcode: &barcode})
	require.Error(t, err)
	assert.Equal(t, constant.KindDuplicateBarcode, constant.KindOf(err))
}

func TestUpdateRevalidatesSampleTypeAndBarcode(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	badType := sample.Type("Not-A-Type")
	_, err = svc.Update(ctx, s.ID, sample.Patch{SampleType: &badType})
	require.Error(t, err)
	assert.Equal(t, constant.KindValidation, constant.KindOf(err))

	newName := "Alpha Prime"
	updated, err := svc.Update(ctx, s.ID, sample.Patch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Alpha Prime", updated.Name)
}

func TestSetStatusFollowsTransitionTable(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, s.ID, sample.StatusInSequencing, nil, nil)
	require.Error(t, err)
	assert.Equal(t, constant.KindInvalidWorkflowTransition, constant.KindOf(err))

	validated, err := svc.SetStatus(ctx, s.ID, sample.StatusValidated, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, sample.StatusValidated, validated.Status)
}

func TestSetStatusIntoStorageRequiresLocation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, s.ID, sample.StatusValidated, nil, nil)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, s.ID, sample.StatusInStorage, nil, nil)
	require.Error(t, err)
	assert.Equal(t, constant.KindValidation, constant.KindOf(err))

	loc := idgen.NewSequential(7).NewID()
	stored, err := svc.SetStatus(ctx, s.ID, sample.StatusInStorage, &loc, nil)
	require.NoError(t, err)
	assert.Equal(t, loc, *stored.LocationID)
}

func TestDeleteRefusesInSequencingSamples(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, s.ID, sample.StatusValidated, nil, nil)
	require.NoError(t, err)

	loc := idgen.NewSequential(7).NewID()
	_, err = svc.SetStatus(ctx, s.ID, sample.StatusInSequencing, &loc, nil)
	require.NoError(t, err)

	err = svc.Delete(ctx, s.ID, nil)
	require.Error(t, err)
	assert.Equal(t, constant.KindBusinessRule, constant.KindOf(err))
}

func TestDeleteSoftDeletesPendingSample(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, s.ID, nil))

	stored, err := repo.ByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, sample.StatusDeleted, stored.Status)
}

func TestValidateFlagsEmptyFields(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA})
	require.NoError(t, err)

	stored, err := repo.ByID(ctx, s.ID)
	require.NoError(t, err)
	stored.Name = "  "
	require.NoError(t, repo.Update(ctx, stored))

	result, err := svc.Validate(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "sample name cannot be empty")
}

func TestValidateWarnsOnNonPositiveConcentration(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	zero := decimal.Zero

	s, err := svc.Create(ctx, sample.CreateRequest{Name: "Alpha", SampleType: sample.TypeDNA, Concentration: &zero})
	require.NoError(t, err)

	result, err := svc.Validate(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "concentration should be greater than 0")
}
