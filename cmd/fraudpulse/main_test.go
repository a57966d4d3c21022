package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"fraudpulse/internal/application"
	"fraudpulse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	fragments []string
	err       error
	closed    bool
}

func (s *scriptedStream) Next() (string, error) {
	if len(s.fragments) == 0 {
		return "", s.err
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type scriptedExplainer struct {
	stream *scriptedStream
	err    error
	dfIdx  int64
}

func (e *scriptedExplainer) StreamExplanation(_ context.Context, dfIdx int64) (application.ExplanationStream, error) {
	e.dfIdx = dfIdx
	if e.err != nil {
		return nil, e.err
	}
	return e.stream, nil
}

func TestStreamExplanationPrintsFragments(t *testing.T) {
	stream := &scriptedStream{fragments: []string{"Large ", "night-time ", "transfer."}, err: io.EOF}
	explainer := &scriptedExplainer{stream: stream}
	var out bytes.Buffer

	require.NoError(t, streamExplanation(context.Background(), explainer, 70, &out))
	assert.Equal(t, "Large night-time transfer.\n", out.String())
	assert.Equal(t, int64(70), explainer.dfIdx)
	assert.True(t, stream.closed)
}

func TestStreamExplanationFallsBackOnStreamError(t *testing.T) {
	stream := &scriptedStream{fragments: []string{"Partial"}, err: errors.New("connection reset")}
	var out bytes.Buffer

	err := streamExplanation(context.Background(), &scriptedExplainer{stream: stream}, 3, &out)
	require.Error(t, err)
	assert.Equal(t, "Partial\n"+application.ExplanationFallback+"\n", out.String())
}

func TestStreamExplanationFallsBackWhenOpenFails(t *testing.T) {
	var out bytes.Buffer

	err := streamExplanation(context.Background(), &scriptedExplainer{err: errors.New("503")}, 3, &out)
	require.Error(t, err)
	assert.Equal(t, application.ExplanationFallback+"\n", out.String())
}

type scriptedPull struct {
	batch domain.PollBatch
	err   error
}

func (p scriptedPull) PollTransactions(context.Context, int64, int) (domain.PollBatch, error) {
	return p.batch, p.err
}

func TestPrintSnapshot(t *testing.T) {
	pull := scriptedPull{batch: domain.PollBatch{
		Transactions: []domain.ScoredTransaction{
			{ID: 1, RiskLevel: domain.RiskLow, Recommendation: domain.RecommendAllow, Amount: 5},
			{ID: 3, RiskLevel: domain.RiskCritical, Recommendation: domain.RecommendBlock, Amount: 900, IsFraud: 1},
			{ID: 2, RiskLevel: domain.RiskHigh, Recommendation: domain.RecommendReview, Amount: 40},
		},
		LatestID: 3,
	}}
	var out bytes.Buffer

	require.NoError(t, printSnapshot(context.Background(), pull, 100, 10, true, &out))

	var report snapshotReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, int64(3), report.LatestID)
	assert.Equal(t, 3, report.Count)
	require.NotNil(t, report.Stats)
	assert.Equal(t, 3, report.Stats.TotalTransactions)
	assert.Equal(t, 2, report.Stats.FlaggedTransactions)
	require.Len(t, report.Transactions, 3)
	assert.Equal(t, int64(3), report.Transactions[0].ID)
}

func TestPrintSnapshotEmptyHasNullStats(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, printSnapshot(context.Background(), scriptedPull{}, 100, 10, false, &out))
	assert.Contains(t, out.String(), `"stats": null`)
	assert.NotContains(t, out.String(), "transactions")
}

func TestPrintSnapshotSeedFailure(t *testing.T) {
	var out bytes.Buffer

	err := printSnapshot(context.Background(), scriptedPull{err: errors.New("down")}, 100, 10, false, &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"run", "explain", "snapshot"})
}

func TestExplainRejectsBadIndex(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"explain", "abc"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid df_idx")
}
