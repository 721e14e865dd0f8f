package vat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-orderlines/internal/obs"
	"github.com/noah-isme/toko-orderlines/internal/vat"
)

type stubRates struct {
	tables map[int64]vat.Table
	calls  []int64
}

func (s *stubRates) StandardTable(_ context.Context, channelID int64) (vat.Table, error) {
	s.calls = append(s.calls, channelID)
	t, ok := s.tables[channelID]
	if !ok {
		return vat.Table{}, fmt.Errorf("channel %d: %w", channelID, vat.ErrTableNotFound)
	}
	return t, nil
}

type stubChannels struct {
	owners map[int64]int64
	calls  int
}

func (s *stubChannels) StoreOwnerChannelID(_ context.Context, storeID int64) (int64, error) {
	s.calls++
	channelID, ok := s.owners[storeID]
	if !ok {
		return 0, vat.ErrStoreNotFound
	}
	return channelID, nil
}

func rates(values ...string) [vat.SlotCount]decimal.Decimal {
	var out [vat.SlotCount]decimal.Decimal
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestResolveSlotExactMatch(t *testing.T) {
	table := vat.Table{ID: 1, Rates: rates("19", "7", "0", "5.5")}
	classifier := &vat.Classifier{}
	for i, rate := range []string{"19", "7", "0", "5.5"} {
		slot, err := classifier.ResolveSlot(context.Background(), table, dec(rate))
		require.NoError(t, err)
		require.Equal(t, vat.Slot(i), slot)
	}
}

func TestResolveSlotFirstMatchWins(t *testing.T) {
	table := vat.Table{Rates: rates("7", "19", "19", "19")}
	slot, err := (&vat.Classifier{}).ResolveSlot(context.Background(), table, dec("19.00"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(1), slot)
}

func TestResolveSlotStandardTableDefaultsToZero(t *testing.T) {
	rateStub := &stubRates{}
	channelStub := &stubChannels{}
	classifier := &vat.Classifier{Rates: rateStub, Channels: channelStub}
	table := vat.Table{Standard: true, Rates: rates("19", "7", "0", "0")}

	slot, err := classifier.ResolveSlot(context.Background(), table, dec("16"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(0), slot)
	require.Empty(t, rateStub.calls)
	require.Zero(t, channelStub.calls)
}

func TestResolveSlotFallsBackToStandardTable(t *testing.T) {
	rateStub := &stubRates{tables: map[int64]vat.Table{
		1: {ID: 10, ChannelID: 1, Standard: true, Rates: rates("7", "19", "0", "0")},
	}}
	channelStub := &stubChannels{owners: map[int64]int64{3: 1}}
	classifier := &vat.Classifier{Rates: rateStub, Channels: channelStub}
	table := vat.Table{ID: 20, StoreID: 3, Rates: rates("20", "10", "5", "0")}

	slot, err := classifier.ResolveSlot(context.Background(), table, dec("19"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(1), slot)
	require.Equal(t, []int64{1}, rateStub.calls)

	slot, err = classifier.ResolveSlot(context.Background(), table, dec("16"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(0), slot)
	require.Equal(t, []int64{1, 1}, rateStub.calls, "one hop per unmatched lookup")
}

func TestResolveSlotStoreResolutionFailure(t *testing.T) {
	classifier := &vat.Classifier{Rates: &stubRates{}, Channels: &stubChannels{}}
	table := vat.Table{StoreID: 99, Rates: rates("20", "10", "5", "0")}

	_, err := classifier.ResolveSlot(context.Background(), table, dec("19"))
	var lookupErr *vat.LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, int64(99), lookupErr.StoreID)
	require.ErrorIs(t, err, vat.ErrStoreNotFound)
}

func TestResolveSlotMissingStandardTable(t *testing.T) {
	classifier := &vat.Classifier{
		Rates:    &stubRates{},
		Channels: &stubChannels{owners: map[int64]int64{3: 8}},
	}
	table := vat.Table{StoreID: 3, Rates: rates("20", "10", "5", "0")}

	_, err := classifier.ResolveSlot(context.Background(), table, dec("19"))
	var lookupErr *vat.LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, int64(8), lookupErr.ChannelID)
	require.ErrorIs(t, err, vat.ErrTableNotFound)
}

func TestResolveSlotDetectsChannelLoop(t *testing.T) {
	rateStub := &stubRates{tables: map[int64]vat.Table{
		1: {ID: 11, StoreID: 3, Rates: rates("20", "10", "5", "0")},
	}}
	classifier := &vat.Classifier{Rates: rateStub, Channels: &stubChannels{owners: map[int64]int64{3: 1}}}
	table := vat.Table{StoreID: 3, Rates: rates("20", "10", "5", "0")}

	_, err := classifier.ResolveSlot(context.Background(), table, dec("19"))
	require.ErrorIs(t, err, vat.ErrFallbackExhausted)
	require.Len(t, rateStub.calls, 1)
}

func TestResolveSlotHonoursMaxHops(t *testing.T) {
	rateStub := &stubRates{tables: map[int64]vat.Table{
		1: {ID: 11, StoreID: 4, Rates: rates("20", "10", "5", "0")},
		2: {ID: 12, StoreID: 5, Rates: rates("20", "10", "5", "0")},
		3: {ID: 13, StoreID: 6, Standard: true, Rates: rates("19", "0", "0", "0")},
	}}
	channels := &stubChannels{owners: map[int64]int64{3: 1, 4: 2, 5: 3}}
	table := vat.Table{StoreID: 3, Rates: rates("20", "10", "5", "0")}

	bounded := &vat.Classifier{Rates: rateStub, Channels: channels, MaxHops: 2}
	_, err := bounded.ResolveSlot(context.Background(), table, dec("19"))
	require.ErrorIs(t, err, vat.ErrFallbackExhausted)

	unbounded := &vat.Classifier{Rates: rateStub, Channels: channels}
	slot, err := unbounded.ResolveSlot(context.Background(), table, dec("19"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(0), slot)
}

func TestResolveSlotCountsEveryHop(t *testing.T) {
	obs.MustRegisterDomainMetrics("vat_test", nil, prometheus.NewRegistry())
	rateStub := &stubRates{tables: map[int64]vat.Table{
		1: {ID: 11, StoreID: 4, Rates: rates("20", "10", "5", "0")},
		2: {ID: 12, StoreID: 5, Standard: true, Rates: rates("7", "19", "0", "0")},
	}}
	classifier := &vat.Classifier{Rates: rateStub, Channels: &stubChannels{owners: map[int64]int64{3: 1, 4: 2}}}
	table := vat.Table{StoreID: 3, Rates: rates("20", "10", "5", "0")}

	hops := testutil.ToFloat64(obs.VatFallbackHops)
	resolved := testutil.ToFloat64(obs.VatFallbackResolutions.WithLabelValues("resolved"))

	slot, err := classifier.ResolveSlot(context.Background(), table, dec("19"))
	require.NoError(t, err)
	require.Equal(t, vat.Slot(1), slot)
	require.Equal(t, hops+2, testutil.ToFloat64(obs.VatFallbackHops))
	require.Equal(t, resolved+1, testutil.ToFloat64(obs.VatFallbackResolutions.WithLabelValues("resolved")))
}

func TestResolveSlotWithoutCollaborators(t *testing.T) {
	table := vat.Table{StoreID: 3, Rates: rates("20", "10", "5", "0")}
	_, err := (&vat.Classifier{}).ResolveSlot(context.Background(), table, dec("19"))
	var lookupErr *vat.LookupError
	require.True(t, errors.As(err, &lookupErr))
}

func TestSlotValid(t *testing.T) {
	require.True(t, vat.Slot(0).Valid())
	require.True(t, vat.Slot(3).Valid())
	require.False(t, vat.Slot(4).Valid())
	require.False(t, vat.Slot(-1).Valid())
}
