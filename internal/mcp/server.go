package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/memberrec/internal/members"
	"github.com/ziadkadry99/memberrec/internal/rerank"
	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Recommender picks a recommendation for a stored member.
type Recommender interface {
	RecommendByID(ctx context.Context, memberNo int64, version string) (*rerank.Pair, error)
}

// Searcher runs similarity search within a version's collection.
type Searcher interface {
	Search(ctx context.Context, text, version string, topK int) ([]vectordb.SearchResult, error)
}

// MemberReader loads a member record.
type MemberReader interface {
	GetByID(ctx context.Context, memberNo int64) (*members.Member, error)
}

// Server exposes member recommendation tools over MCP.
type Server struct {
	recommender    Recommender
	index          Searcher
	store          MemberReader
	defaultVersion string
	mcp            *server.MCPServer
}

// NewServer creates a new MCP server. recommender may be nil when no LLM
// is configured; recommend_member is then not offered.
func NewServer(recommender Recommender, index Searcher, store MemberReader, defaultVersion string) *Server {
	if defaultVersion == "" {
		defaultVersion = "v1"
	}
	s := &Server{
		recommender:    recommender,
		index:          index,
		store:          store,
		defaultVersion: defaultVersion,
	}

	s.mcp = server.NewMCPServer(
		"memberrec",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchMembersTool, s.handleSearchMembers)
	s.mcp.AddTool(getMemberTool, s.handleGetMember)
	if s.recommender != nil {
		s.mcp.AddTool(recommendMemberTool, s.handleRecommendMember)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
