package rerank

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/prompts"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

// Candidate is a neighbour offered to the LLM.
type Candidate struct {
	MemberNo int64
	Summary  string
}

// candidatesFor drops the member itself from the search hits.
func candidatesFor(m members.Member, hits []vectordb.SearchResult) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if h.ID == m.MemberNo {
			continue
		}
		out = append(out, Candidate{MemberNo: h.ID, Summary: h.Document})
	}
	return out
}

func memberInfo(m members.Member) string {
	return "## Member information\n" + strings.Join(members.InfoLines(m), "\t\n")
}

func candidateInfo(candidates []Candidate) string {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "## Candidate %d: \n\t- `member_no`: %d\n\t- `member_summary`: %s\n\n",
			i+1, c.MemberNo, c.Summary)
	}
	return sb.String()
}

// BuildPrompt renders the comparison prompt for m and its candidates.
func BuildPrompt(m members.Member, candidates []Candidate, version string) (string, error) {
	return prompts.Render(prompts.RerankAndCompare, version, prompts.RerankData{
		CandidateNums: len(candidates),
		MemberInfo:    memberInfo(m),
		CandidateInfo: candidateInfo(candidates),
	})
}
