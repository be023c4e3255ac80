package navigate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

type fakeTarget struct {
	content   string
	navErr    error
	submitErr error
	stableErr error
	visited   []string
	filled    map[string]string
	submitted bool
	closed    bool
	hang      bool
}

func (f *fakeTarget) Navigate(_ context.Context, url string) error {
	f.visited = append(f.visited, url)
	return f.navErr
}

func (f *fakeTarget) FillField(_ context.Context, name, value string) error {
	if f.filled == nil {
		f.filled = map[string]string{}
	}
	f.filled[name] = value
	return nil
}

func (f *fakeTarget) Submit(context.Context) error {
	f.submitted = true
	return f.submitErr
}

func (f *fakeTarget) WaitForStable(ctx context.Context, _ time.Duration) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.stableErr
}

func (f *fakeTarget) ReadContent(context.Context) (string, error) { return f.content, nil }

func (f *fakeTarget) Close() error {
	f.closed = true
	return nil
}

type fakeFactory struct {
	target  *fakeTarget
	openErr error
}

func (f *fakeFactory) Open(context.Context, model.NavigationSpec) (core.AutomationTarget, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.target, nil
}

func schema(t *testing.T) *extract.Schema {
	t.Helper()
	s, err := extract.NewSchema(&model.SourceDefinition{
		Name:        "shareholding",
		Mode:        model.ModeIdentity,
		TargetField: "stock_code",
		PeriodField: "shareholding_date",
		Identity:    []string{"stock_code", "shareholding_date", "participant_id"},
		Columns: []model.ColumnSpec{
			{Field: "participant_id", Labels: []string{"Participant ID"}, Type: model.ColumnText, Required: true},
			{Field: "shareholding", Labels: []string{"Shareholding"}, Type: model.ColumnInteger, Required: true},
		},
		Navigation: model.NavigationSpec{
			URL:           "https://example.test/search?code={target}",
			TargetInput:   "#txtStockCode",
			PeriodInput:   "#txtShareholdingDate",
			PeriodLayout:  "2006/01/02",
			Submit:        "#btnSearch",
			NoDataMarkers: []string{"No record found"},
			ErrorMarkers:  []string{"System busy"},
			Timeout:       time.Second,
		},
	})
	require.NoError(t, err)
	return s
}

var item = model.WorkItem{TargetKey: "00700", PeriodKey: "2025-01-10", Period: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)}

func newNavigator(t *testing.T, f *fakeFactory) *Navigator {
	t.Helper()
	n, err := New(Options{Targets: f, Extractor: extract.New(extract.Options{})})
	require.NoError(t, err)
	return n
}

func TestNavigator_Extracted(t *testing.T) {
	target := &fakeTarget{content: `<table><tr><th>Participant ID</th><th>Shareholding</th></tr><tr><td>C00019</td><td>1,000</td></tr></table>`}
	res := newNavigator(t, &fakeFactory{target: target}).Run(context.Background(), item, schema(t))

	assert.Equal(t, []State{StateInit, StateLoaded, StateFormFilled, StateSubmitted, StateExtracted}, res.States)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome.Status)
	require.Len(t, res.Outcome.Records, 1)
	assert.Equal(t, []string{"https://example.test/search?code=00700"}, target.visited)
	assert.Equal(t, map[string]string{"#txtStockCode": "00700", "#txtShareholdingDate": "2025/01/10"}, target.filled)
	assert.True(t, target.submitted)
	assert.True(t, target.closed)
}

func TestNavigator_NoDataMarker(t *testing.T) {
	target := &fakeTarget{content: `<div>No record found</div>`}
	res := newNavigator(t, &fakeFactory{target: target}).Run(context.Background(), item, schema(t))

	assert.Equal(t, StateEmptyResult, res.Final())
	assert.Equal(t, model.OutcomeNoData, res.Outcome.Status)
	assert.Empty(t, res.Outcome.Records)
	assert.NoError(t, res.Outcome.Err)
	assert.Equal(t, DetailTargetNoData, res.Outcome.Detail)
	assert.True(t, target.closed)
}

func TestNavigator_ErrorMarker(t *testing.T) {
	target := &fakeTarget{content: `<div>System busy, try later</div>`}
	res := newNavigator(t, &fakeFactory{target: target}).Run(context.Background(), item, schema(t))

	assert.Equal(t, StateErrored, res.Final())
	assert.Equal(t, apperrors.ErrCodeNavigationError, apperrors.GetCode(res.Outcome.Err))
}

func TestNavigator_LoadFailures(t *testing.T) {
	tests := []struct {
		name     string
		navErr   error
		wantCode apperrors.ErrorCode
	}{
		{name: "rate limited keeps code", navErr: apperrors.New(apperrors.ErrCodeRateLimitExceeded, "429"), wantCode: apperrors.ErrCodeRateLimitExceeded},
		{name: "deadline becomes timeout", navErr: context.DeadlineExceeded, wantCode: apperrors.ErrCodeNavigationTimeout},
		{name: "other becomes navigation error", navErr: errors.New("boom"), wantCode: apperrors.ErrCodeNavigationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &fakeTarget{navErr: tt.navErr}
			res := newNavigator(t, &fakeFactory{target: target}).Run(context.Background(), item, schema(t))

			assert.Equal(t, []State{StateInit, StateErrored}, res.States)
			assert.Equal(t, model.OutcomeError, res.Outcome.Status)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(res.Outcome.Err))
			assert.True(t, target.closed, "session released on failure")
		})
	}
}

func TestNavigator_StableTimeout(t *testing.T) {
	target := &fakeTarget{hang: true}
	s := schema(t)
	s.Definition().Navigation.Timeout = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := newNavigator(t, &fakeFactory{target: target}).Run(ctx, item, s)

	assert.Equal(t, StateErrored, res.Final())
	assert.Equal(t, apperrors.ErrCodeNavigationTimeout, apperrors.GetCode(res.Outcome.Err))
}

func TestNavigator_OpenFailure(t *testing.T) {
	res := newNavigator(t, &fakeFactory{openErr: errors.New("no browser")}).Run(context.Background(), item, schema(t))
	assert.Equal(t, []State{StateInit, StateErrored}, res.States)
	assert.Equal(t, apperrors.ErrCodeNavigationError, apperrors.GetCode(res.Outcome.Err))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Extractor: extract.New(extract.Options{})})
	assert.Error(t, err)
	_, err = New(Options{Targets: &fakeFactory{}})
	assert.Error(t, err)
}
