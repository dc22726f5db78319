package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/memberrec/internal/rerank"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

func (s *Server) handleRecommendMember(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	memberNo, err := request.RequireInt("member_no")
	if err != nil || memberNo <= 0 {
		return mcp.NewToolResultError("member_no must be a positive integer"), nil
	}
	version := request.GetString("version", s.defaultVersion)

	rec, err := s.recommender.RecommendByID(ctx, int64(memberNo), version)
	switch {
	case errors.Is(err, rerank.ErrMemberNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("member %d does not exist", memberNo)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("recommendation failed: %v", err)), nil
	case rec == nil:
		return mcp.NewToolResultText(fmt.Sprintf(
			"No similar members found for member %d in %s. Run `memberrec refresh --version %s` to index members.",
			memberNo, version, version)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Recommended member: %d (version %s)\nReason: %s",
		rec.MatchedMemberNo, rec.Version, rec.Reason)), nil
}

func (s *Server) handleSearchMembers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	version := request.GetString("version", s.defaultVersion)
	limit := request.GetInt("limit", 5)

	results, err := s.index.Search(ctx, query, version, limit)
	if errors.Is(err, vectordb.ErrCollectionNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Nothing is indexed for %s yet. Run `memberrec refresh --version %s` first.", version, version)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func (s *Server) handleGetMember(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	memberNo, err := request.RequireInt("member_no")
	if err != nil || memberNo <= 0 {
		return mcp.NewToolResultError("member_no must be a positive integer"), nil
	}
	m, err := s.store.GetByID(ctx, int64(memberNo))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading member failed: %v", err)), nil
	}
	if m == nil {
		return mcp.NewToolResultError(fmt.Sprintf("member %d does not exist", memberNo)), nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
