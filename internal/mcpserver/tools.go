package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the sixfinger MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

const componentsHelp = "Browser fingerprint components as an object of strings: canvas, webgl, audio, fonts, " +
	"hardware, screen, browser, timezone, plugins, touch, battery, network, media, colorDepth, doNotTrack. " +
	"Use \"unsupported\" or \"error\" when a probe failed; omit fields that were not collected."

var ToolSubmitFingerprint = mcp.NewTool("submit_fingerprint",
	mcp.WithDescription(
		"Record a visit for a browser fingerprint and return its updated risk score. "+
			"Repeat submissions of the same hash increase the visit count, which raises the score past 10 visits."),
	mcp.WithString("hash",
		mcp.Required(),
		mcp.Description("The 32-character fingerprint hash computed by the client")),
	mcp.WithObject("components",
		mcp.Required(),
		mcp.Description(componentsHelp)),
)

var ToolGetFingerprint = mcp.NewTool("get_fingerprint",
	mcp.WithDescription(
		"Look up a stored fingerprint: its risk score, bot verdict, visit count, and first/last seen times."),
	mcp.WithString("hash",
		mcp.Required(),
		mcp.Description("The 32-character fingerprint hash")),
)

var ToolGetRiskScore = mcp.NewTool("get_risk_score",
	mcp.WithDescription(
		"Explain why a stored fingerprint scored the way it did. "+
			"Returns the score, bot verdict, confidence, and every rule (factor) that fired."),
	mcp.WithString("hash",
		mcp.Required(),
		mcp.Description("The 32-character fingerprint hash")),
)

var ToolEvaluateComponents = mcp.NewTool("evaluate_components",
	mcp.WithDescription(
		"Score fingerprint components without recording a visit. "+
			"Use this to test how a hypothetical browser would be classified."),
	mcp.WithObject("components",
		mcp.Required(),
		mcp.Description(componentsHelp)),
	mcp.WithNumber("visit_count",
		mcp.Description("Visit count to score with (default 1)")),
)

var ToolListFingerprints = mcp.NewTool("list_fingerprints",
	mcp.WithDescription(
		"Browse stored fingerprints, most recently seen first. "+
			"Set bots_only to review traffic classified as automated."),
	mcp.WithBoolean("bots_only",
		mcp.Description("Only return fingerprints classified as bots")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of fingerprints to return (default 20)")),
	mcp.WithString("cursor",
		mcp.Description("Cursor from a previous list_fingerprints result to fetch the next page")),
)

var ToolListRules = mcp.NewTool("list_rules",
	mcp.WithDescription(
		"Show the active scoring rules with their score contributions and the bot threshold."),
)
