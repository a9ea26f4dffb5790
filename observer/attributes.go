package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for turn observability spans and metrics.
var (
	AttrProvider = attribute.Key("turn.provider")
	AttrTurnID   = attribute.Key("turn.id")

	AttrTokensInput  = attribute.Key("turn.tokens.input")
	AttrTokensOutput = attribute.Key("turn.tokens.output")

	AttrToolCount = attribute.Key("turn.tool_count")
	AttrToolNames = attribute.Key("turn.tool_names")

	AttrStreamChunks = attribute.Key("turn.stream_chunks")

	AttrEmbedTextCount  = attribute.Key("embed.text_count")
	AttrEmbedDimensions = attribute.Key("embed.dimensions")
)
