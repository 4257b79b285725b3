// Package core defines the shared data model of AgentGraph: the Message
// tagged variant, the ordered Prompt sequence, tool call/result payloads and
// the error taxonomy used across the graph engine, session store, tool
// dispatcher and history compressor.
package core
