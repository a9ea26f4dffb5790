// Package oni is the orchestration core of the OniOS desktop assistant.
//
// It turns a streamed language-model response into a verifiable multi-turn
// sequence of tool invocations, backed by a durable, independently queryable
// memory of facts and past conversations. The desktop shell supplies the
// actual skills (file access, window control, task creation) and executes
// them; this core decides when and with what arguments they are invoked,
// and reconciles the results back into the conversation.
//
// The root package holds the domain types, the canonical streaming event
// vocabulary, the similarity engine, the context assembler, and the turn
// engine. Subpackages provide the pluggable edges: store backends
// (store/jsonfile, store/sqlite, store/postgres), wire-protocol adapters
// (provider/chatcompat, provider/responses), embeddings
// (provider/openaiembed), the credential manager (auth), and the record
// stores built on top (memory, knowledge, convo).
package oni
