// Package pipeline implements generation.Generator on top of a long-lived
// child process that hosts the diffusion model.
//
// The process reads commands from stdin and writes events to stdout, one
// JSON object per line:
//
//	-> {"type":"init","model_path":"...","output_dir":"..."}
//	<- {"type":"ready"}
//	-> {"type":"generate","id":"...","prompt":"...","steps":30,"width":1024,"height":1024,...}
//	<- {"type":"progress","id":"...","step":1,"total":30}
//	<- {"type":"done","id":"...","filename":"20250101_120000_123.png"}
//	<- {"type":"error","id":"...","message":"..."}
//
// Anything written to stderr is forwarded to the log.
package pipeline
