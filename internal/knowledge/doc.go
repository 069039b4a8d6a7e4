// Package knowledge implements embedding-backed retrieval over a bot's
// FAQs and uploaded documents, plus the wholesale index rebuild that
// (re)embeds them.
package knowledge
