// Package prompt forwards finished utterances to a downstream language model.
// Finals are joined into one prompt and sent after the speaker goes quiet.
package prompt
