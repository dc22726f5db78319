package mcp

import "github.com/mark3labs/mcp-go/mcp"

var recommendMemberTool = mcp.NewTool("recommend_member",
	mcp.WithDescription("Recommend the most relevant other member for a given member, with the reason for the match."),
	mcp.WithNumber("member_no",
		mcp.Required(),
		mcp.Description("Member number to recommend for"),
	),
	mcp.WithString("version",
		mcp.Description("Pipeline version whose index is searched (default v1)"),
	),
)

var searchMembersTool = mcp.NewTool("search_members",
	mcp.WithDescription("Semantic search over member profiles. Returns the closest members and their summaries."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language description of the member you are looking for"),
	),
	mcp.WithString("version",
		mcp.Description("Pipeline version whose index is searched (default v1)"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
)

var getMemberTool = mcp.NewTool("get_member",
	mcp.WithDescription("Get the stored profile of a member."),
	mcp.WithNumber("member_no",
		mcp.Required(),
		mcp.Description("Member number"),
	),
)
