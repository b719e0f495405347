// Package llm turns raw financial input into candidate action tables using a
// language model. It supports multiple providers including OpenAI and
// Anthropic, with retry logic, rate limiting and response caching, and a
// tolerant parser for the fixed-schema output format.
package llm
