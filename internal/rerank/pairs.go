package rerank

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// Pair is a recommendation: the member chosen for MemberNo, and why.
type Pair struct {
	MemberNo        int64  `json:"member_no"`
	MatchedMemberNo int64  `json:"matched_member_no"`
	Reason          string `json:"reason"`
	Version         string `json:"version"`
}

// PairError is a member whose recommendation failed during a range run.
type PairError struct {
	MemberNo int64  `json:"member_no"`
	Error    string `json:"error"`
}

// RangeResult holds the pairs and failures of RecommendRange.
type RangeResult struct {
	Pairs  []Pair      `json:"pairs"`
	Errors []PairError `json:"errors"`
}

// RecommendRange recommends for every stored member with from <= member_no
// <= to. Members without candidates are skipped; failures are collected.
func (r *Reranker) RecommendRange(ctx context.Context, from, to int64, version string) (*RangeResult, error) {
	list, err := r.store.List(ctx, members.ListFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("listing members %d-%d: %w", from, to, err)
	}

	out := &RangeResult{Pairs: []Pair{}, Errors: []PairError{}}
	for _, m := range list {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := r.Recommend(ctx, m, version)
		if err != nil {
			r.logger.Warn("recommendation failed", zap.Int64("member_no", m.MemberNo), zap.Error(err))
			out.Errors = append(out.Errors, PairError{MemberNo: m.MemberNo, Error: err.Error()})
			continue
		}
		if rec == nil {
			continue
		}
		out.Pairs = append(out.Pairs, *rec)
	}
	return out, nil
}

// WriteCSV writes pairs with a header row.
func WriteCSV(w io.Writer, pairs []Pair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"member_no", "matched_member_no", "reason", "version"}); err != nil {
		return err
	}
	for _, p := range pairs {
		row := []string{
			strconv.FormatInt(p.MemberNo, 10),
			strconv.FormatInt(p.MatchedMemberNo, 10),
			p.Reason,
			p.Version,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
