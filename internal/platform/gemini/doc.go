// Package gemini rewrites generation prompts with Google's Gemini API before
// they reach the image pipeline.
//
// The Enhancer first translates the prompt to English with the translator
// model (when one is configured) and then asks the enhancer model for a richer
// prompt. Both calls request a JSON object through a response schema. Any
// failure falls back to the prompt as it was before that step.
package gemini
